// Package query builds composable filter predicates over tasks.
//
// A Predicate answers "does this task satisfy me?" so any backend can
// interpret it: Match gives the in-memory reading, and Leaves exposes
// the flat conjunction so a SQL store can translate each unit predicate
// into its own WHERE fragment. Composition is AND-only; the All
// predicate is the identity element.
package query

import (
	"strings"

	"taskboard/internal/domain"
)

// Predicate is a boolean test over a single task.
type Predicate interface {
	Match(t domain.Task) bool
}

// All matches every task. It is the identity element for And.
type All struct{}

func (All) Match(domain.Task) bool { return true }

// TitleContains matches a case-insensitive substring of the title.
type TitleContains struct {
	Substring string
}

func (p TitleContains) Match(t domain.Task) bool {
	return strings.Contains(strings.ToLower(t.Title), strings.ToLower(p.Substring))
}

// AssigneeIs matches an exact assignee id. A task without an assignee
// never matches.
type AssigneeIs struct {
	ID int64
}

func (p AssigneeIs) Match(t domain.Task) bool {
	return t.AssigneeID != nil && *t.AssigneeID == p.ID
}

// StatusIs matches the status slug exactly.
type StatusIs struct {
	Slug string
}

func (p StatusIs) Match(t domain.Task) bool {
	return t.StatusSlug == p.Slug
}

// HasLabel matches when the task's label set contains the id.
type HasLabel struct {
	ID int64
}

func (p HasLabel) Match(t domain.Task) bool {
	return t.HasLabel(p.ID)
}

// Conjunction is the AND of its parts.
type Conjunction struct {
	parts []Predicate
}

func (c Conjunction) Match(t domain.Task) bool {
	for _, p := range c.parts {
		if !p.Match(t) {
			return false
		}
	}
	return true
}

// Parts returns the unit predicates of the conjunction.
func (c Conjunction) Parts() []Predicate {
	return c.parts
}

// And combines predicates conjunctively, dropping identity elements
// and flattening nested conjunctions.
func And(preds ...Predicate) Predicate {
	var parts []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case All:
		case Conjunction:
			parts = append(parts, v.parts...)
		default:
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return All{}
	case 1:
		return parts[0]
	}
	return Conjunction{parts: parts}
}

// Leaves flattens a predicate into its unit predicates. All yields nil.
func Leaves(p Predicate) []Predicate {
	switch v := p.(type) {
	case nil, All:
		return nil
	case Conjunction:
		return v.parts
	default:
		return []Predicate{p}
	}
}

// Build turns the filter criteria into a single predicate. Absent
// fields contribute nothing, so an empty filter matches every task.
func Build(f domain.TaskFilter) Predicate {
	preds := make([]Predicate, 0, 4)
	if f.TitleCont != "" {
		preds = append(preds, TitleContains{Substring: f.TitleCont})
	}
	if f.AssigneeID != nil {
		preds = append(preds, AssigneeIs{ID: *f.AssigneeID})
	}
	if f.Status != "" {
		preds = append(preds, StatusIs{Slug: f.Status})
	}
	if f.LabelID != nil {
		preds = append(preds, HasLabel{ID: *f.LabelID})
	}
	return And(preds...)
}
