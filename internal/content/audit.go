package content

import (
	"strings"

	"github.com/soaringjerry/coachdesk/internal/models"
)

// EmptySection names a section without items and the module it sits in.
type EmptySection struct {
	Module  string `json:"module"`
	Section string `json:"section"`
}

// Report is the content-completeness audit of one course. It is derived on every
// read and never stored.
type Report struct {
	TotalModules       int            `json:"totalModules"`
	TotalSections      int            `json:"totalSections"`
	TotalItems         int            `json:"totalItems"`
	ModulesWithContent int            `json:"modulesWithContent"`
	EmptyModules       []string       `json:"emptyModules"`
	EmptySections      []EmptySection `json:"emptySections"`
	MissingCoverImage  bool           `json:"missingCoverImage"`
}

// HasIssues is true when any module or section is empty or the cover image is missing.
func (r Report) HasIssues() bool {
	return len(r.EmptyModules) > 0 || len(r.EmptySections) > 0 || r.MissingCoverImage
}

// Audit walks the tree once. A module has content when at least one of its sections
// has an item; its own fields do not count. A nil course yields zero counts.
func Audit(course *models.Course) Report {
	r := Report{EmptyModules: []string{}, EmptySections: []EmptySection{}}
	if course == nil {
		return r
	}
	r.MissingCoverImage = strings.TrimSpace(course.CoverImage) == ""
	for _, m := range course.Modules {
		r.TotalModules++
		hasContent := false
		for _, s := range m.Sections {
			r.TotalSections++
			r.TotalItems += len(s.Items)
			if len(s.Items) == 0 {
				r.EmptySections = append(r.EmptySections, EmptySection{Module: m.Name, Section: s.Title})
				continue
			}
			hasContent = true
		}
		if hasContent {
			r.ModulesWithContent++
		} else {
			r.EmptyModules = append(r.EmptyModules, m.Name)
		}
	}
	return r
}

func moduleEmpty(m models.Module) bool {
	for _, s := range m.Sections {
		if len(s.Items) > 0 {
			return false
		}
	}
	return true
}
