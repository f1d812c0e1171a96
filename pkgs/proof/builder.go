package proof

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
)

// VersionV1 is the current proof envelope version. Verifiers dispatch on the
// leading version byte, so the v1 canonical encoding below must never change.
const VersionV1 = byte(0x01)

// InvalidInputError reports proof-builder input that could never produce a
// valid on-chain submission. Fatal for the given input.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid proof input %s: %s", e.Field, e.Reason)
}

// DeriveID maps a project identifier to its ledger id. The mapping is
// deterministic so resubmission of the same logical prediction collides at
// the ledger's uniqueness check instead of creating a duplicate record.
func DeriveID(projectID string) ([32]byte, error) {
	if projectID == "" {
		return [32]byte{}, &InvalidInputError{Field: "projectID", Reason: "must be non-empty"}
	}
	return crypto.Keccak256Hash([]byte(projectID)), nil
}

// Builder constructs opaque proof payloads binding a score to the feature
// explanations and identity that produced it.
type Builder struct{}

// NewBuilder creates a proof builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build serializes the prediction inputs into the v1 proof envelope:
// a version byte followed by the keccak256 digest of the canonical string
// encoding. An off-chain verifier re-derives the envelope from the same
// inputs and compares bytes.
func (b *Builder) Build(score uint8, featureExplanations map[string]float64, submitter common.Address, timestamp uint64) ([]byte, error) {
	if score > ledger.MaxScore {
		return nil, &InvalidInputError{
			Field:  "score",
			Reason: fmt.Sprintf("%d exceeds maximum of %d", score, ledger.MaxScore),
		}
	}
	if submitter == (common.Address{}) {
		return nil, &InvalidInputError{Field: "submitter", Reason: "must be non-zero"}
	}
	if timestamp == 0 {
		return nil, &InvalidInputError{Field: "timestamp", Reason: "must be non-zero"}
	}

	canonical := canonicalEncoding(score, featureExplanations, submitter, timestamp)
	digest := crypto.Keccak256([]byte(canonical))

	payload := make([]byte, 0, 1+len(digest))
	payload = append(payload, VersionV1)
	payload = append(payload, digest...)
	return payload, nil
}

// canonicalEncoding produces the deterministic string the v1 digest covers.
// Feature keys are sorted so map iteration order cannot change the proof.
func canonicalEncoding(score uint8, features map[string]float64, submitter common.Address, timestamp uint64) string {
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.12g", k, features[k]))
	}

	return fmt.Sprintf("superpage/proof/v1|score=%d|submitter=%s|ts=%d|features=%s",
		score, strings.ToLower(submitter.Hex()), timestamp, strings.Join(parts, ","))
}
