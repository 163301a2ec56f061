// Package content holds the view-model logic over a course tree: expand/collapse
// state, a flattened outline and the content audit.
package content

import (
	"sort"

	"github.com/soaringjerry/coachdesk/internal/models"
)

// ExpandedSet is the set of expanded module and section ids. It is owned by the view
// and passed in explicitly; the functions here never modify their input.
type ExpandedSet map[string]struct{}

func NewExpandedSet(ids ...string) ExpandedSet {
	s := make(ExpandedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s ExpandedSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members sorted.
func (s ExpandedSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s ExpandedSet) Equal(o ExpandedSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// Toggle adds id when absent and removes it when present. Toggling twice gives back
// an equal set.
func Toggle(id string, set ExpandedSet) ExpandedSet {
	next := make(ExpandedSet, len(set)+1)
	for k := range set {
		next[k] = struct{}{}
	}
	if _, ok := next[id]; ok {
		delete(next, id)
	} else {
		next[id] = struct{}{}
	}
	return next
}

// ExpandAll returns every module and section id. Items have no collapse state.
func ExpandAll(course *models.Course) ExpandedSet {
	set := ExpandedSet{}
	if course == nil {
		return set
	}
	for _, m := range course.Modules {
		set[m.ID] = struct{}{}
		for _, s := range m.Sections {
			set[s.ID] = struct{}{}
		}
	}
	return set
}

func CollapseAll() ExpandedSet { return ExpandedSet{} }

// RowKind identifies the tree level of an outline row.
type RowKind string

const (
	RowModule  RowKind = "module"
	RowSection RowKind = "section"
	RowItem    RowKind = "item"
)

// Row is one visible line of the rendered outline.
type Row struct {
	Kind       RowKind `json:"kind"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Depth      int     `json:"depth"`
	Expandable bool    `json:"expandable"`
	Expanded   bool    `json:"expanded"`
	Empty      bool    `json:"empty"`
	Detail     string  `json:"detail,omitempty"`
	ChildCount int     `json:"childCount"`
}

// Outline flattens the tree into the rows a view shows for the given expanded set.
// Children of a collapsed node are skipped. Order follows the tree.
func Outline(course *models.Course, expanded ExpandedSet) []Row {
	rows := []Row{}
	if course == nil {
		return rows
	}
	for _, m := range course.Modules {
		open := expanded.Has(m.ID)
		rows = append(rows, Row{
			Kind:       RowModule,
			ID:         m.ID,
			Title:      m.Name,
			Expandable: true,
			Expanded:   open,
			Empty:      moduleEmpty(m),
			Detail:     string(m.Type),
			ChildCount: len(m.Sections),
		})
		if !open {
			continue
		}
		for _, s := range m.Sections {
			sopen := expanded.Has(s.ID)
			rows = append(rows, Row{
				Kind:       RowSection,
				ID:         s.ID,
				Title:      s.Title,
				Depth:      1,
				Expandable: true,
				Expanded:   sopen,
				Empty:      len(s.Items) == 0,
				ChildCount: len(s.Items),
			})
			if !sopen {
				continue
			}
			for _, it := range s.Items {
				rows = append(rows, Row{
					Kind:       RowItem,
					ID:         it.ID,
					Title:      it.Title,
					Depth:      2,
					Detail:     itemDetail(it),
					ChildCount: len(it.Exercises),
				})
			}
		}
	}
	return rows
}

func itemDetail(it models.ContentItem) string {
	switch it.Kind {
	case models.ContentVideo:
		if it.VideoURL != "" {
			return it.VideoURL
		}
	case models.ContentPDF:
		if it.FileURL != "" {
			return it.FileURL
		}
	}
	return string(it.Kind)
}
