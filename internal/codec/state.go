package codec

import (
	"fmt"
	"strings"
)

// State is the activation state of a managed rule. In the document it is
// encoded by commenting every body line; nothing outside this package should
// look at comment characters.
type State int

const (
	Disabled State = iota
	Enabled
)

const commentPrefix = "#"

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// ParseState reads "enabled" or "disabled".
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled":
		return Enabled, nil
	case "disabled":
		return Disabled, nil
	default:
		return Disabled, fmt.Errorf("unknown rule state %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ApplyState rewrites every line of body for the target state. Enabling
// strips exactly one leading comment character and leaves uncommented lines
// alone. Disabling prefixes every line, including lines that are already
// comments, so enable(disable(x)) == x.
func ApplyState(body string, target State) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if target == Enabled {
			lines[i] = strings.TrimPrefix(line, commentPrefix)
		} else {
			lines[i] = commentPrefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// StateOf reports Disabled when every non-empty line of body is commented.
func StateOf(body string) State {
	seen := false
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen = true
		if !strings.HasPrefix(line, commentPrefix) {
			return Enabled
		}
	}
	if !seen {
		return Enabled
	}
	return Disabled
}
