package submitter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
)

// Backend is the write-path network surface the submitter needs.
// *ethclient.Client satisfies it.
type Backend interface {
	NonceSource
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Config controls submission behavior
type Config struct {
	ChainID             int64
	GasBufferPercent    int
	MaxBroadcastRetries int
	BroadcastRetryDelay time.Duration
	BalanceCheckEnabled bool
}

// SubmissionResult records a broadcast transaction awaiting confirmation
type SubmissionResult struct {
	TxHash      common.Hash
	Nonce       uint64
	GasLimit    uint64
	GasPrice    *big.Int
	SubmittedAt time.Time
}

// Submitter converts validated publish requests into signed submit
// transactions against the prediction ledger contract.
type Submitter struct {
	backend    Backend
	ledger     *ledger.Client
	nonces     *NonceManager
	privateKey *ecdsa.PrivateKey
	fromAddr   common.Address
	chainID    *big.Int
	cfg        Config
}

// New creates a submitter signing with the given hex-encoded private key
func New(backend Backend, ledgerClient *ledger.Client, privateKeyHex string, cfg Config) (*Submitter, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	if cfg.MaxBroadcastRetries <= 0 {
		cfg.MaxBroadcastRetries = 3
	}
	if cfg.BroadcastRetryDelay <= 0 {
		cfg.BroadcastRetryDelay = 500 * time.Millisecond
	}
	if cfg.GasBufferPercent <= 0 {
		cfg.GasBufferPercent = 20
	}

	return &Submitter{
		backend:    backend,
		ledger:     ledgerClient,
		nonces:     NewNonceManager(backend),
		privateKey: privateKey,
		fromAddr:   crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(cfg.ChainID),
		cfg:        cfg,
	}, nil
}

// From returns the signing account address
func (s *Submitter) From() common.Address {
	return s.fromAddr
}

// Submit signs and broadcasts a ledger submit call. Validation failures
// surface before any nonce is consumed: client-side checks return
// *ledger.ValidationError, and an estimation failure (the contract would
// reject the call) returns *WouldRevertError.
func (s *Submitter) Submit(ctx context.Context, id [32]byte, score uint8, proof []byte) (*SubmissionResult, error) {
	data, err := s.ledger.PackSubmit(id, score, proof)
	if err != nil {
		return nil, err
	}

	contractAddr := s.ledger.ContractAddress()
	msg := ethereum.CallMsg{
		From: s.fromAddr,
		To:   &contractAddr,
		Data: data,
	}

	// Estimation doubles as a dry run: a call the contract would revert
	// fails here, before any real resources are spent.
	gasLimit, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, &WouldRevertError{Reason: err}
	}
	gasLimit = gasLimit * uint64(100+s.cfg.GasBufferPercent) / 100

	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if s.cfg.BalanceCheckEnabled {
		if err := s.checkBalance(ctx, gasLimit, gasPrice); err != nil {
			return nil, err
		}
	}

	nonce, err := s.nonces.Reserve(ctx, s.fromAddr)
	if err != nil {
		return nil, err
	}

	tx := types.NewTransaction(
		nonce,
		contractAddr,
		big.NewInt(0), // 0 value
		gasLimit,
		gasPrice,
		data,
	)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		s.nonces.Reset(s.fromAddr)
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"tx_hash":   signedTx.Hash().Hex(),
		"gas_limit": gasLimit,
		"gas_price": gasPrice.String(),
		"nonce":     nonce,
		"id":        common.Hash(id).Hex(),
		"score":     score,
	}).Info("📤 Submitting prediction to ledger")

	if err := s.broadcast(ctx, signedTx); err != nil {
		s.nonces.Reset(s.fromAddr)
		return nil, err
	}

	return &SubmissionResult{
		TxHash:      signedTx.Hash(),
		Nonce:       nonce,
		GasLimit:    gasLimit,
		GasPrice:    gasPrice,
		SubmittedAt: time.Now(),
	}, nil
}

func (s *Submitter) checkBalance(ctx context.Context, gasLimit uint64, gasPrice *big.Int) error {
	balance, err := s.backend.BalanceAt(ctx, s.fromAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch account balance: %w", err)
	}

	required := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	if balance.Cmp(required) < 0 {
		return &InsufficientFundsError{
			Account:  s.fromAddr,
			Balance:  balance,
			Required: required,
		}
	}
	return nil
}

// broadcast sends the signed transaction, retrying transient network
// failures with the same nonce a bounded number of times.
func (s *Submitter) broadcast(ctx context.Context, signedTx *types.Transaction) error {
	attempts := 0
	operation := func() error {
		attempts++
		if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
			log.Warnf("Broadcast attempt %d for %s failed: %v", attempts, signedTx.Hash().Hex(), err)
			return err
		}
		return nil
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.BroadcastRetryDelay), uint64(s.cfg.MaxBroadcastRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, strategy); err != nil {
		return &BroadcastFailedError{
			TxHash:   signedTx.Hash(),
			Attempts: attempts,
			Err:      err,
		}
	}
	return nil
}
