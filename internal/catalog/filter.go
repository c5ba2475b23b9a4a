package catalog

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/photo-triage/internal/quality"
)

// Kind selects entries by verdict.
type Kind string

const (
	KindAll       Kind = "all"
	KindQualified Kind = "qualified"
	KindDefective Kind = "defective"
)

// Filter selects catalog entries. DefectTypes, when set, requires every listed
// defect to be present on the entry.
type Filter struct {
	Kind        Kind
	DefectTypes []quality.DefectType
}

// ParseFilter builds a filter from a kind name and comma-separated defect names,
// each of which must be one of known. An empty kind means all.
func ParseFilter(kind string, defects []string, known []quality.DefectType) (Filter, error) {
	f := Filter{Kind: KindAll}
	switch k := Kind(strings.ToLower(strings.TrimSpace(kind))); k {
	case "", KindAll:
	case KindQualified, KindDefective:
		f.Kind = k
	default:
		return Filter{}, fmt.Errorf("unknown filter %q (expected all, qualified or defective)", kind)
	}

	for _, raw := range defects {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			d, err := quality.ParseDefectType(name, known)
			if err != nil {
				return Filter{}, err
			}
			f.DefectTypes = append(f.DefectTypes, d)
		}
	}
	return f, nil
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e Entry) bool {
	switch f.Kind {
	case KindQualified:
		if !e.Qualified() {
			return false
		}
	case KindDefective:
		if e.Qualified() {
			return false
		}
	}
	for _, d := range f.DefectTypes {
		if !e.Quality.HasDefect(d) {
			return false
		}
	}
	return true
}
