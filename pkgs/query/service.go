package query

import (
	"bytes"
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
)

// Reader is the ledger read surface the query service consumes
type Reader interface {
	Get(ctx context.Context, id [32]byte) (*ledger.PredictionRecord, error)
	Exists(ctx context.Context, id [32]byte) (bool, error)
	Count(ctx context.Context) (uint64, error)
}

// Service is the read-only verification surface over the prediction ledger.
// It is independent of the write path and queries canonical contract state
// only, so an unconfirmed submission is never visible here.
type Service struct {
	reader Reader
}

// NewService creates a query service over a ledger reader
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// Lookup fetches the full record for an id. Returns ledger.ErrNotFound for
// an absent id; absence is not logged as an error.
func (s *Service) Lookup(ctx context.Context, id [32]byte) (*ledger.PredictionRecord, error) {
	return s.reader.Get(ctx, id)
}

// Exists reports whether a record has been written for the id
func (s *Service) Exists(ctx context.Context, id [32]byte) (bool, error) {
	return s.reader.Exists(ctx, id)
}

// Count returns the ledger's total successful writes since genesis
func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.reader.Count(ctx)
}

// Verify compares the stored proof for an id byte-for-byte against the
// expected payload. Mismatch and absence both return false without an
// error: verification failure is an expected outcome. Transport failures
// are still surfaced as errors.
func (s *Service) Verify(ctx context.Context, id [32]byte, expectedProof []byte) (bool, error) {
	record, err := s.reader.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if !bytes.Equal(record.Proof, expectedProof) {
		log.Debugf("Proof mismatch for prediction: stored %d bytes, expected %d bytes",
			len(record.Proof), len(expectedProof))
		return false, nil
	}
	return true, nil
}
