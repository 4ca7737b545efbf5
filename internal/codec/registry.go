package codec

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/aatumaykin/ruletoggle/internal/recurrence"
)

// Registry maps release versions to the block format they introduced.
type Registry struct {
	formats []registered
}

type registered struct {
	version *semver.Version
	format  Format
}

// NewRegistry builds a registry. Versions must be valid semver and unique.
func NewRegistry(formats ...Format) (*Registry, error) {
	r := &Registry{}
	seen := make(map[string]bool, len(formats))
	for _, f := range formats {
		v, err := semver.NewVersion(f.version)
		if err != nil {
			return nil, fmt.Errorf("invalid format version %s: %w", f.version, err)
		}
		if seen[v.String()] {
			return nil, fmt.Errorf("duplicate format version %s", f.version)
		}
		seen[v.String()] = true
		r.formats = append(r.formats, registered{version: v, format: f})
	}
	sort.Slice(r.formats, func(i, j int) bool {
		return r.formats[i].version.LessThan(r.formats[j].version)
	})
	return r, nil
}

// Lookup returns the format in effect for a release: the newest format whose
// version is not greater than release. ok is false for unparseable releases
// and for releases older than every registered format.
func (r *Registry) Lookup(release string) (Format, bool) {
	v, err := semver.NewVersion(release)
	if err != nil {
		return Format{}, false
	}
	for i := len(r.formats) - 1; i >= 0; i-- {
		if !r.formats[i].version.GreaterThan(v) {
			return r.formats[i].format, true
		}
	}
	return Format{}, false
}

// Versions lists registered format versions, oldest first.
func (r *Registry) Versions() []string {
	out := make([]string, len(r.formats))
	for i, f := range r.formats {
		out[i] = f.format.version
	}
	return out
}

// Older reports whether release a sorts before release b. Unparseable
// versions are never older.
func Older(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return false
	}
	return va.LessThan(vb)
}

// V010 is the first released layout.
var V010 = NewFormat("0.1.0", func(cronSchedule string, seconds int64) []string {
	return []string{
		"This rule will be automatically enabled at according to the following cron schedule here:",
		fmt.Sprintf("%s (in the UTC timezone) and disabled %d seconds later.", recurrence.VisualizerURL(cronSchedule), seconds),
		"To delete this rule use the 'Delete AutoModerator Toggled Block' in the subreddit context menu!",
		"DO NOT EDIT THIS BLOCK WHILE IT IS COMMENTED OUT",
	}
})

// V020 fixes the schedule sentence and points removal at the remove action.
var V020 = NewFormat("0.2.0", func(cronSchedule string, seconds int64) []string {
	return []string{
		"This rule is automatically enabled according to the following cron schedule:",
		fmt.Sprintf("%s (in the UTC timezone) and disabled %d seconds later.", recurrence.VisualizerURL(cronSchedule), seconds),
		"To delete this rule use the 'Remove Toggled Block' action instead of editing this page!",
		"DO NOT EDIT THIS BLOCK WHILE IT IS COMMENTED OUT",
	}
})

// DefaultRegistry holds every released format.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(V010, V020)
	if err != nil {
		panic(err)
	}
	return r
}
