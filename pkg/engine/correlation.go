package engine

import (
	"crypto/sha256"
	"encoding/hex"
)

// CorrelationID derives the idempotence key of a run. Redelivering the same event to the
// same trigger of the same workflow always yields the same id.
func CorrelationID(workflowID, eventID, triggerNodeID string) string {
	sum := sha256.Sum256([]byte(workflowID + "\x00" + eventID + "\x00" + triggerNodeID))

	return hex.EncodeToString(sum[:])
}
