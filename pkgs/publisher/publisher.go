package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/metrics"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/proof"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/submitter"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/tracker"
)

// Submitter is the write-path surface the publisher drives
type Submitter interface {
	Submit(ctx context.Context, id [32]byte, score uint8, proofBytes []byte) (*submitter.SubmissionResult, error)
	From() common.Address
}

// Tracker awaits terminal classification of a broadcast transaction
type Tracker interface {
	Await(ctx context.Context, txHash common.Hash) (*tracker.Outcome, error)
	Confirmations(ctx context.Context, txHash common.Hash) (uint64, error)
}

// LedgerReader covers the duplicate fast-path check and the confirmation
// event decode
type LedgerReader interface {
	Exists(ctx context.Context, id [32]byte) (bool, error)
	DecodeSubmittedEvent(receipt *types.Receipt) (*ledger.SubmittedEvent, error)
}

// Config controls publisher behavior
type Config struct {
	// ConfirmationTimeout bounds background monitoring of each submission
	ConfirmationTimeout time.Duration
	// MetricsEnabled toggles prometheus instrumentation
	MetricsEnabled bool
}

// Publisher runs the full publish pipeline: proof construction, transaction
// submission, and background confirmation tracking. Each request is handed
// between stages as a value; the only shared mutable state is the handle
// store and the per-account nonce counter inside the submitter.
type Publisher struct {
	proofBuilder *proof.Builder
	submitter    Submitter
	tracker      Tracker
	ledger       LedgerReader
	store        HandleStore
	cfg          Config

	wg sync.WaitGroup
}

// New creates a publisher
func New(proofBuilder *proof.Builder, sub Submitter, trk Tracker, ledgerReader LedgerReader, store HandleStore, cfg Config) *Publisher {
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 5 * time.Minute
	}
	return &Publisher{
		proofBuilder: proofBuilder,
		submitter:    sub,
		tracker:      trk,
		ledger:       ledgerReader,
		store:        store,
		cfg:          cfg,
	}
}

// Publish derives the prediction id and proof, submits the transaction, and
// returns a pending handle immediately. Confirmation is tracked in the
// background; final status is obtainable via Status.
func (p *Publisher) Publish(ctx context.Context, req *PublishRequest) (*TransactionHandle, error) {
	id, err := proof.DeriveID(req.ProjectID)
	if err != nil {
		p.countValidationFailure("proof_input")
		return nil, err
	}

	// Fast duplicate check before spending anything on estimation. A race
	// that slips past this is caught by the contract and reported as
	// WouldRevert or Reverted.
	exists, err := p.ledger.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		p.countValidationFailure("duplicate_id")
		return nil, &ledger.ValidationError{Field: "id", Reason: "prediction already exists for this project"}
	}

	proofBytes, err := p.proofBuilder.Build(req.Score, req.FeatureExplanations, p.submitter.From(), uint64(time.Now().Unix()))
	if err != nil {
		p.countValidationFailure("proof_input")
		return nil, err
	}

	result, err := p.submitter.Submit(ctx, id, req.Score, proofBytes)
	if err != nil {
		p.classifySubmitFailure(err)
		return nil, err
	}

	handle := &TransactionHandle{
		TxHash:      result.TxHash.Hex(),
		LedgerID:    common.Hash(id),
		ProjectID:   req.ProjectID,
		Score:       req.Score,
		Nonce:       result.Nonce,
		SubmittedAt: result.SubmittedAt,
		Status:      tracker.StatusPending,
	}

	if err := p.store.Put(ctx, handle); err != nil {
		log.Warnf("Failed to store handle for %s, status lookups will miss it: %v", handle.TxHash, err)
	}

	log.WithFields(log.Fields{
		"project_id": req.ProjectID,
		"ledger_id":  handle.LedgerID.Hex(),
		"tx_hash":    handle.TxHash,
		"score":      req.Score,
		"metadata":   req.Metadata,
	}).Info("Prediction submitted, awaiting confirmation")

	// The monitor owns its own copy; the caller's handle stays a snapshot.
	monitored := *handle
	p.wg.Add(1)
	go p.monitor(&monitored)

	return handle, nil
}

// monitor waits for the transaction's terminal state and updates the stored
// handle. It runs detached from the request context: the caller's deadline
// bounds the HTTP exchange, not confirmation.
func (p *Publisher) monitor(handle *TransactionHandle) {
	defer p.wg.Done()

	if p.cfg.MetricsEnabled {
		metrics.InFlightSubmissions.Inc()
		defer metrics.InFlightSubmissions.Dec()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConfirmationTimeout+30*time.Second)
	defer cancel()

	outcome, err := p.tracker.Await(ctx, common.HexToHash(handle.TxHash))
	if err != nil {
		// Dropped: the tracker already classified it, the caller decides
		// whether to resubmit with a fresh nonce.
		log.Warnf("Transaction %s for project %s dropped: %v", handle.TxHash, handle.ProjectID, err)
	}

	handle.Status = outcome.Status
	handle.Confirmations = outcome.Confirmations

	if outcome.Status == tracker.StatusConfirmed && outcome.Receipt != nil {
		p.checkSubmittedEvent(handle, outcome.Receipt)
	}

	if err := p.store.Put(ctx, handle); err != nil {
		log.Errorf("Failed to record terminal status for %s: %v", handle.TxHash, err)
	}

	if p.cfg.MetricsEnabled {
		metrics.SubmissionsTotal.WithLabelValues(string(outcome.Status)).Inc()
		metrics.ConfirmationDuration.WithLabelValues(string(outcome.Status)).
			Observe(time.Since(handle.SubmittedAt).Seconds())
	}
}

// Status returns the current view of a submitted transaction. Pending
// handles report live confirmation counts.
func (p *Publisher) Status(ctx context.Context, txHash string) (*TransactionHandle, error) {
	handle, err := p.store.Get(ctx, txHash)
	if err != nil {
		return nil, err
	}

	if !handle.Status.Terminal() {
		confirmations, err := p.tracker.Confirmations(ctx, common.HexToHash(txHash))
		if err == nil {
			handle.Confirmations = confirmations
		}
	}

	return handle, nil
}

// Wait blocks until all background monitors finish. Used during shutdown
// and by tests.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// checkSubmittedEvent cross-checks the contract's notification event against
// the handle. A confirmed receipt without a matching event means the write
// did not land the record we submitted.
func (p *Publisher) checkSubmittedEvent(handle *TransactionHandle, receipt *types.Receipt) {
	event, err := p.ledger.DecodeSubmittedEvent(receipt)
	if err != nil {
		log.Warnf("Failed to decode submission event for %s: %v", handle.TxHash, err)
		return
	}
	if event == nil {
		log.Warnf("Confirmed transaction %s carries no submission event", handle.TxHash)
		return
	}
	if common.Hash(event.ID) != handle.LedgerID {
		log.Errorf("Confirmed transaction %s wrote id %s, expected %s",
			handle.TxHash, common.Hash(event.ID).Hex(), handle.LedgerID.Hex())
		return
	}
	log.WithFields(log.Fields{
		"tx_hash":   handle.TxHash,
		"ledger_id": handle.LedgerID.Hex(),
		"score":     event.Score,
		"timestamp": event.Timestamp,
	}).Info("✅ Prediction recorded on ledger")
}

func (p *Publisher) countValidationFailure(stage string) {
	if p.cfg.MetricsEnabled {
		metrics.ValidationFailures.WithLabelValues(stage).Inc()
	}
}

func (p *Publisher) classifySubmitFailure(err error) {
	if !p.cfg.MetricsEnabled {
		return
	}
	switch err.(type) {
	case *ledger.ValidationError:
		metrics.ValidationFailures.WithLabelValues("ledger").Inc()
	case *submitter.WouldRevertError:
		metrics.SubmissionsTotal.WithLabelValues("would_revert").Inc()
	case *submitter.InsufficientFundsError:
		metrics.SubmissionsTotal.WithLabelValues("insufficient_funds").Inc()
	case *submitter.BroadcastFailedError:
		metrics.SubmissionsTotal.WithLabelValues("broadcast_failed").Inc()
	default:
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
	}
}
