package persistence

import (
	"slices"
	"strings"

	"github.com/iotlinker/automation/pkg/models"
)

// SortNewestFirst orders run records by start time descending, then by correlation id.
func SortNewestFirst(records []*models.RunRecord) {
	slices.SortFunc(records, func(a, b *models.RunRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}

		return strings.Compare(a.CorrelationID, b.CorrelationID)
	})
}

// ValidateID rejects identifiers that are empty or could escape a storage namespace.
func ValidateID(id string) error {
	if id == "" || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return ErrInvalidID
	}

	return nil
}
