package visibility

import (
	"strings"

	"github.com/noah-isme/eduschedule-api/internal/models"
)

// LegacyMetadataTarget is role/batch targeting read from the event metadata bag.
// Older rows carry their audience only there. It is consulted after the structured rules.
type LegacyMetadataTarget struct {
	Role  models.UserRole
	Batch string
}

// LegacyTargetOf extracts the legacy target of an event.
func LegacyTargetOf(ev models.Event) LegacyMetadataTarget {
	return LegacyMetadataTarget{
		Role:  models.ParseRole(ev.Metadata.TargetRole),
		Batch: strings.TrimSpace(ev.Metadata.TargetBatch),
	}
}

// Matches applies batch targeting first, then role targeting.
func (t LegacyMetadataTarget) Matches(v Viewer) bool {
	if batch := strings.TrimSpace(v.Batch()); t.Batch != "" && batch != "" && strings.EqualFold(t.Batch, batch) {
		return true
	}
	return t.Role != "" && t.Role == v.Role()
}
