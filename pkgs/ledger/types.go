package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MaxScore is the upper bound for a prediction score (inclusive percentage).
const MaxScore = 100

// PredictionRecord is the unit of storage in the on-chain prediction ledger.
// Submitter and Timestamp are assigned by the contract at write time and
// cannot be supplied by callers.
type PredictionRecord struct {
	ID        [32]byte
	Submitter common.Address
	Score     uint8
	Timestamp uint64
	Proof     []byte
}

// ValidationError reports a submission that violates one of the ledger's
// write invariants. It is fatal: retrying the same input will fail again.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ValidateSubmission mirrors the contract's own checks so doomed submissions
// fail before any network round trip. The contract remains the authority;
// this only saves gas.
func ValidateSubmission(id [32]byte, score uint8, proof []byte) error {
	if id == ([32]byte{}) {
		return &ValidationError{Field: "id", Reason: "must be non-zero"}
	}
	if score > MaxScore {
		return &ValidationError{Field: "score", Reason: fmt.Sprintf("%d exceeds maximum of %d", score, MaxScore)}
	}
	if len(proof) == 0 {
		return &ValidationError{Field: "proof", Reason: "must be non-empty"}
	}
	return nil
}
