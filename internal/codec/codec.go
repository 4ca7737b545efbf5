// Package codec renders and recognises the comment markers that frame a
// managed rule inside the shared document.
//
// Each released marker layout is a Format. Formats are immutable and are
// kept forever in a Registry so that blocks written by an older release can
// still be located and re-rendered during migration.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBlockNotFound means the start marker of a rule is not in the document.
	ErrBlockNotFound = errors.New("managed rule block not found")

	// ErrBlockMalformed means a start marker was found without its end marker.
	ErrBlockMalformed = errors.New("managed rule block is malformed")
)

// BorderPrefix starts every marker line. It is shared by all formats.
const BorderPrefix = "###### DO NOT EDIT THIS LINE - "

// Edge selects the start or end border of a block.
type Edge string

const (
	Start Edge = "start"
	End   Edge = "end"
)

// HeaderFunc returns the sentences of the info header, one per line, without
// the border prefix. It must depend on its arguments only.
type HeaderFunc func(recurrence string, seconds int64) []string

// Format is one released version of the block layout.
type Format struct {
	version string
	header  HeaderFunc
}

// NewFormat defines a format. Call it only from registry definitions.
func NewFormat(version string, header HeaderFunc) Format {
	return Format{version: version, header: header}
}

// Version is the release that introduced this layout.
func (f Format) Version() string { return f.version }

// Bind attaches the bot identifier written into every border.
func (f Format) Bind(bot string) Codec {
	return Codec{format: f, bot: bot}
}

// Codec renders and parses blocks for one bot with one Format.
type Codec struct {
	format Format
	bot    string
}

// Version is the underlying format version.
func (c Codec) Version() string { return c.format.version }

// Bot is the bot identifier used in borders.
func (c Codec) Bot() string { return c.bot }

// Rule is everything needed to render a block.
type Rule struct {
	Name       string
	Recurrence string
	Seconds    int64
	Body       string
}

// Markers are the exact strings that delimit one rule's block.
type Markers struct {
	Start  string
	Header string
	End    string
}

// Opening is the start border followed by the info header, the anchor used
// to find the interior of a block.
func (m Markers) Opening() string {
	return m.Start + "\n" + m.Header
}

// Rendered holds the two renderings of a block.
type Rendered struct {
	// Block is what ends up in the document, body commented when disabled.
	Block string
	// Validation always carries the raw body, so the document owner can
	// check the rule syntax before the real block is written.
	Validation string
}

// BorderLine prefixes each part with the border prefix and joins them with
// newlines.
func BorderLine(parts ...string) string {
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = BorderPrefix + strings.TrimSpace(p)
	}
	return strings.Join(lines, "\n")
}

// Border returns the start or end border for a rule name.
func (c Codec) Border(name string, edge Edge) string {
	return BorderLine(fmt.Sprintf("%s %s managed rule %s", edge, c.bot, name))
}

// InfoHeader is the human-readable explanation placed under the start border.
func (c Codec) InfoHeader(recurrence string, seconds int64) string {
	return BorderLine(c.format.header(recurrence, seconds)...)
}

// Markers returns the delimiters of a rule's block.
func (c Codec) Markers(name, recurrence string, seconds int64) Markers {
	return Markers{
		Start:  c.Border(name, Start),
		Header: c.InfoHeader(recurrence, seconds),
		End:    c.Border(name, End),
	}
}

// RenderBlock renders the block for r in the given state, together with its
// validation variant.
func (c Codec) RenderBlock(r Rule, state State) Rendered {
	body := strings.TrimSpace(r.Body)
	validation := c.Frame(r.Name, r.Recurrence, r.Seconds, body)
	if state == Enabled {
		return Rendered{Block: validation, Validation: validation}
	}
	disabled := strings.TrimSpace(ApplyState(body, Disabled))
	return Rendered{
		Block:      c.Frame(r.Name, r.Recurrence, r.Seconds, disabled),
		Validation: validation,
	}
}

// Frame wraps body in the start border, header and end border exactly as it
// appears in the document.
func (c Codec) Frame(name, recurrence string, seconds int64, body string) string {
	m := c.Markers(name, recurrence, seconds)
	return strings.TrimSpace(strings.Join([]string{m.Start, m.Header, body, m.End}, "\n"))
}

// ExtractBody returns the trimmed interior of a rule's block.
func (c Codec) ExtractBody(document, name, recurrence string, seconds int64) (string, error) {
	return Extract(document, c.Markers(name, recurrence, seconds))
}

// Extract returns the trimmed text between m.Opening() and m.End.
func Extract(document string, m Markers) (string, error) {
	_, rest, found := CutLine(document, m.Opening())
	if !found {
		return "", ErrBlockNotFound
	}
	body, _, found := CutLine(rest, m.End)
	if !found {
		return "", ErrBlockMalformed
	}
	return strings.TrimSpace(body), nil
}

// RuleNames lists, in document order, the names of every rule whose start
// border for this bot appears in document.
func (c Codec) RuleNames(document string) []string {
	prefix := c.Border("", Start) + " "
	var names []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(document, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		name := strings.TrimPrefix(line, prefix)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// BorderMarkers returns markers with only the start and end borders set,
// enough to remove a block whatever its header says.
func (c Codec) BorderMarkers(name string) Markers {
	return Markers{Start: c.Border(name, Start), End: c.Border(name, End)}
}
