package document

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator checks content before it is written.
type Validator interface {
	Validate(content string) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(content string) error

func (f ValidatorFunc) Validate(content string) error { return f(content) }

// YAMLValidator accepts content whose every "---" separated section is
// valid YAML.
type YAMLValidator struct{}

func (YAMLValidator) Validate(content string) error {
	for i, section := range SplitSections(content) {
		if strings.TrimSpace(section) == "" {
			continue
		}
		var v any
		if err := yaml.Unmarshal([]byte(section), &v); err != nil {
			return &SyntaxError{
				Section: i + 1,
				Reason:  strings.TrimPrefix(err.Error(), "yaml: "),
			}
		}
	}
	return nil
}

// SplitSections splits content on lines that consist of exactly "---".
func SplitSections(content string) []string {
	var (
		sections []string
		current  []string
	)
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimRight(line, "\r") == "---" {
			sections = append(sections, strings.Join(current, "\n"))
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	return append(sections, strings.Join(current, "\n"))
}
