package visibility

import (
	"strings"

	"github.com/noah-isme/eduschedule-api/internal/models"
)

// ClassClause selects class-scoped events of ClassIDs. When TeacherID is set, events assigned
// to another teacher are excluded.
type ClassClause struct {
	ClassIDs  []string
	TeacherID string
}

// Predicate is the store-side constraint set for a viewer's listing. A row matches when it is
// not deleted, satisfies ScopeHint (if any) and either Unrestricted is set or at least one
// disjunct holds. Stores may apply it coarsely; IsVisible remains the final word.
type Predicate struct {
	Unrestricted bool
	ScopeHint    models.VisibilityScope

	CreatedBy   string
	OpenScopes  []models.VisibilityScope
	Class       *ClassClause
	TargetUser  string
	LegacyBatch string
	LegacyRole  models.UserRole
}

// BuildFilterPredicate derives the query constraints for v. scopeHint narrows the result to a
// single visibility scope; pass "" for no narrowing.
func BuildFilterPredicate(v Viewer, scopeHint models.VisibilityScope) Predicate {
	pred := Predicate{ScopeHint: scopeHint}
	if v == nil {
		return pred
	}

	switch viewer := v.(type) {
	case Admin:
		pred.Unrestricted = true
		return pred
	case Teacher:
		if len(viewer.Classes) > 0 {
			pred.Class = &ClassClause{ClassIDs: viewer.Classes.IDs(), TeacherID: viewer.ID}
		}
	case Student:
		if viewer.ClassID != "" {
			pred.Class = &ClassClause{ClassIDs: []string{viewer.ClassID}}
		}
	default:
		return pred
	}

	pred.CreatedBy = v.ViewerID()
	pred.TargetUser = v.ViewerID()
	pred.OpenScopes = []models.VisibilityScope{models.ScopeAll, models.ScopeSchoolwide}
	pred.LegacyBatch = strings.TrimSpace(v.Batch())
	pred.LegacyRole = v.Role()
	return pred
}

// Matches evaluates the predicate against an in-memory event.
func (p Predicate) Matches(ev models.Event) bool {
	if ev.IsDeleted {
		return false
	}
	if p.ScopeHint != "" && ev.VisibilityScope != p.ScopeHint {
		return false
	}
	if p.Unrestricted {
		return true
	}
	if p.CreatedBy != "" && ev.CreatedBy == p.CreatedBy {
		return true
	}
	for _, scope := range p.OpenScopes {
		if ev.VisibilityScope == scope {
			return true
		}
	}
	if p.Class != nil && ev.VisibilityScope == models.ScopeClass && p.Class.matches(ev) {
		return true
	}
	if p.TargetUser != "" && ev.VisibilityScope == models.ScopePersonal && models.StringValue(ev.TargetUser) == p.TargetUser {
		return true
	}
	legacy := LegacyTargetOf(ev)
	if p.LegacyBatch != "" && legacy.Batch != "" && strings.EqualFold(legacy.Batch, p.LegacyBatch) {
		return true
	}
	return p.LegacyRole != "" && legacy.Role == p.LegacyRole
}

func (c ClassClause) matches(ev models.Event) bool {
	target := models.StringValue(ev.TargetClass)
	found := false
	for _, id := range c.ClassIDs {
		if id == target {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if c.TeacherID == "" {
		return true
	}
	teacher := models.StringValue(ev.TeacherID)
	return teacher == "" || teacher == c.TeacherID
}
