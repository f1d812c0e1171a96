package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a prediction id is absent from the ledger.
// Absence is an expected read outcome, not a failure.
var ErrNotFound = errors.New("prediction not found")

// Caller is the read-only contract call surface the client needs.
// *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client binds to the SuperPage prediction ledger contract. All reads go
// against the canonical contract state so uncommitted writes are never
// observable.
type Client struct {
	caller       Caller
	contractAddr common.Address
	abi          abi.ABI
}

// NewClient creates a ledger contract client
func NewClient(caller Caller, contractAddr common.Address) (*Client, error) {
	ledgerABI, err := abi.JSON(strings.NewReader(PredictionLedgerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction ledger ABI: %w", err)
	}

	return &Client{
		caller:       caller,
		contractAddr: contractAddr,
		abi:          ledgerABI,
	}, nil
}

// ContractAddress returns the bound contract address
func (c *Client) ContractAddress() common.Address {
	return c.contractAddr
}

// PackSubmit builds the calldata for the contract's submit operation.
// Client-side validation runs first so bad input never produces calldata.
func (c *Client) PackSubmit(id [32]byte, score uint8, proof []byte) ([]byte, error) {
	if err := ValidateSubmission(id, score, proof); err != nil {
		return nil, err
	}

	data, err := c.abi.Pack("submit", id, score, proof)
	if err != nil {
		return nil, fmt.Errorf("failed to pack submit call: %w", err)
	}
	return data, nil
}

// Exists reports whether a prediction has been written for the given id.
// A zero id is always absent.
func (c *Client) Exists(ctx context.Context, id [32]byte) (bool, error) {
	if id == ([32]byte{}) {
		return false, nil
	}

	out, err := c.call(ctx, "exists", id)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := c.abi.UnpackIntoInterface(&exists, "exists", out); err != nil {
		return false, fmt.Errorf("failed to unpack exists result: %w", err)
	}
	return exists, nil
}

// Get fetches the full prediction record for an id. Returns ErrNotFound if
// the id has never been written.
func (c *Client) Get(ctx context.Context, id [32]byte) (*PredictionRecord, error) {
	exists, err := c.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	out, err := c.call(ctx, "get", id)
	if err != nil {
		return nil, err
	}

	results, err := c.abi.Unpack("get", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack get result: %w", err)
	}
	if len(results) != 4 {
		return nil, fmt.Errorf("unexpected get result arity: %d", len(results))
	}

	record := &PredictionRecord{ID: id}
	var ok bool
	if record.Submitter, ok = results[0].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected submitter type %T", results[0])
	}
	if record.Score, ok = results[1].(uint8); !ok {
		return nil, fmt.Errorf("unexpected score type %T", results[1])
	}
	if record.Timestamp, ok = results[2].(uint64); !ok {
		return nil, fmt.Errorf("unexpected timestamp type %T", results[2])
	}
	if record.Proof, ok = results[3].([]byte); !ok {
		return nil, fmt.Errorf("unexpected proof type %T", results[3])
	}

	log.Debugf("Fetched prediction %s: score=%d, submitter=%s",
		common.Hash(id).Hex(), record.Score, record.Submitter.Hex())

	return record, nil
}

// Count returns the total number of successful writes since contract genesis
func (c *Client) Count(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "count", nil)
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := c.abi.UnpackIntoInterface(&count, "count", out); err != nil {
		return 0, fmt.Errorf("failed to unpack count result: %w", err)
	}
	return count, nil
}

func (c *Client) call(ctx context.Context, method string, id interface{}) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if id != nil {
		data, err = c.abi.Pack(method, id)
	} else {
		data, err = c.abi.Pack(method)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	msg := ethereum.CallMsg{
		To:   &c.contractAddr,
		Data: data,
	}

	out, err := c.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	return out, nil
}

// SubmittedEvent is the decoded PredictionSubmitted notification the
// contract emits on every successful write.
type SubmittedEvent struct {
	ID        [32]byte
	Submitter common.Address
	Score     uint8
	Timestamp uint64
}

// DecodeSubmittedEvent extracts the PredictionSubmitted event from a
// transaction receipt, if present. Returns (nil, nil) when the receipt
// carries no matching log from the bound contract.
func (c *Client) DecodeSubmittedEvent(receipt *types.Receipt) (*SubmittedEvent, error) {
	eventSig := c.abi.Events["PredictionSubmitted"].ID

	for _, vLog := range receipt.Logs {
		if vLog.Address != c.contractAddr || len(vLog.Topics) < 3 {
			continue
		}
		if vLog.Topics[0] != eventSig {
			continue
		}

		event := &SubmittedEvent{}
		copy(event.ID[:], vLog.Topics[1].Bytes())
		event.Submitter = common.BytesToAddress(vLog.Topics[2].Bytes())

		unpacked, err := c.abi.Unpack("PredictionSubmitted", vLog.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack PredictionSubmitted event: %w", err)
		}
		if len(unpacked) != 2 {
			return nil, fmt.Errorf("unexpected event data arity: %d", len(unpacked))
		}

		var ok bool
		if event.Score, ok = unpacked[0].(uint8); !ok {
			return nil, fmt.Errorf("unexpected event score type %T", unpacked[0])
		}
		if event.Timestamp, ok = unpacked[1].(uint64); !ok {
			return nil, fmt.Errorf("unexpected event timestamp type %T", unpacked[1])
		}

		return event, nil
	}

	return nil, nil
}

// PredictionLedgerABI contains the ABI for the SuperPage prediction ledger contract
const PredictionLedgerABI = `[
	{
		"inputs": [
			{"internalType": "bytes32", "name": "id", "type": "bytes32"},
			{"internalType": "uint8", "name": "score", "type": "uint8"},
			{"internalType": "bytes", "name": "proof", "type": "bytes"}
		],
		"name": "submit",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "id", "type": "bytes32"}
		],
		"name": "get",
		"outputs": [
			{"internalType": "address", "name": "submitter", "type": "address"},
			{"internalType": "uint8", "name": "score", "type": "uint8"},
			{"internalType": "uint64", "name": "timestamp", "type": "uint64"},
			{"internalType": "bytes", "name": "proof", "type": "bytes"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "id", "type": "bytes32"}
		],
		"name": "exists",
		"outputs": [
			{"internalType": "bool", "name": "", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "count",
		"outputs": [
			{"internalType": "uint64", "name": "", "type": "uint64"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "id", "type": "bytes32"},
			{"indexed": true, "internalType": "address", "name": "submitter", "type": "address"},
			{"indexed": false, "internalType": "uint8", "name": "score", "type": "uint8"},
			{"indexed": false, "internalType": "uint64", "name": "timestamp", "type": "uint64"}
		],
		"name": "PredictionSubmitted",
		"type": "event"
	}
]`
