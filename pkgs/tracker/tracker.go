package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

// Status is the lifecycle state of a submitted transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusDropped   Status = "dropped"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusReverted || s == StatusDropped
}

// DroppedError means the transaction was neither included nor observable
// after the configured timeout, typically because it was superseded by a
// conflicting nonce. Retryable with a fresh nonce.
type DroppedError struct {
	TxHash  common.Hash
	Elapsed time.Duration
}

func (e *DroppedError) Error() string {
	return fmt.Sprintf("transaction %s dropped: not included within %v, resubmit with a fresh nonce",
		e.TxHash.Hex(), e.Elapsed)
}

// Outcome is the tracker's terminal classification of a transaction
type Outcome struct {
	Status        Status
	Confirmations uint64
	BlockNumber   uint64
	GasUsed       uint64
	Receipt       *types.Receipt
}

// Backend is the read surface the tracker polls. *ethclient.Client
// satisfies it.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config controls polling and finality behavior. All values come from
// settings since confirmation characteristics vary by network.
type Config struct {
	ConfirmationDepth   uint64
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	MaxPollInterval     time.Duration
}

// Tracker observes the network until a submitted transaction reaches a
// terminal, trustworthy state. It never retries a transaction on its own;
// the retry decision belongs to the caller.
type Tracker struct {
	backend Backend
	cfg     Config
}

// New creates a confirmation tracker
func New(backend Backend, cfg Config) *Tracker {
	if cfg.ConfirmationDepth == 0 {
		cfg.ConfirmationDepth = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = cfg.PollInterval
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 5 * time.Minute
	}

	return &Tracker{backend: backend, cfg: cfg}
}

var errNotIncluded = errors.New("transaction not yet included")
var errNotDeepEnough = errors.New("transaction lacks confirmation depth")

// Await polls for the transaction's receipt with exponential backoff until
// it is confirmed at the configured depth, reverted, or the overall timeout
// expires. On timeout the outcome is StatusDropped and the error is a
// *DroppedError; a reverted transaction is a terminal outcome, not an error.
func (t *Tracker) Await(ctx context.Context, txHash common.Hash) (*Outcome, error) {
	start := time.Now()

	var outcome *Outcome
	operation := func() error {
		receipt, err := t.backend.TransactionReceipt(ctx, txHash)
		if err != nil {
			// "not found" means the tx is still in flight; anything else is
			// a transient RPC problem worth another poll.
			log.Debugf("Receipt for %s not available: %v", txHash.Hex(), err)
			return errNotIncluded
		}

		head, err := t.backend.BlockNumber(ctx)
		if err != nil {
			log.Debugf("Failed to fetch head block while tracking %s: %v", txHash.Hex(), err)
			return errNotIncluded
		}

		confirmations := confirmationsAt(receipt.BlockNumber, head)
		if confirmations < t.cfg.ConfirmationDepth {
			log.Debugf("Transaction %s at %d/%d confirmations", txHash.Hex(), confirmations, t.cfg.ConfirmationDepth)
			return errNotDeepEnough
		}

		status := StatusConfirmed
		if receipt.Status != types.ReceiptStatusSuccessful {
			status = StatusReverted
		}

		outcome = &Outcome{
			Status:        status,
			Confirmations: confirmations,
			BlockNumber:   receipt.BlockNumber.Uint64(),
			GasUsed:       receipt.GasUsed,
			Receipt:       receipt,
		}
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = t.cfg.PollInterval
	strategy.MaxInterval = t.cfg.MaxPollInterval
	strategy.MaxElapsedTime = t.cfg.ConfirmationTimeout

	err := backoff.Retry(operation, backoff.WithContext(strategy, ctx))
	if err != nil {
		elapsed := time.Since(start)
		log.WithFields(log.Fields{
			"tx_hash": txHash.Hex(),
			"elapsed": elapsed,
		}).Warn("⏱️ Transaction dropped: confirmation deadline expired")

		return &Outcome{Status: StatusDropped}, &DroppedError{TxHash: txHash, Elapsed: elapsed}
	}

	if outcome.Status == StatusConfirmed {
		log.WithFields(log.Fields{
			"tx_hash":       txHash.Hex(),
			"block_number":  outcome.BlockNumber,
			"confirmations": outcome.Confirmations,
			"gas_used":      outcome.GasUsed,
		}).Info("✅ Transaction confirmed")
	} else {
		log.WithFields(log.Fields{
			"tx_hash":      txHash.Hex(),
			"block_number": outcome.BlockNumber,
		}).Error("❌ Transaction reverted by ledger validation")
	}

	return outcome, nil
}

// Confirmations returns the current confirmation count for an included
// transaction, or 0 while it is pending.
func (t *Tracker) Confirmations(ctx context.Context, txHash common.Hash) (uint64, error) {
	receipt, err := t.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return 0, nil
	}

	head, err := t.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch head block: %w", err)
	}

	return confirmationsAt(receipt.BlockNumber, head), nil
}

func confirmationsAt(included *big.Int, head uint64) uint64 {
	if included == nil || !included.IsUint64() || head < included.Uint64() {
		return 0
	}
	return head - included.Uint64() + 1
}
