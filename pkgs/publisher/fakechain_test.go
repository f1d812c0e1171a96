package publisher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
)

const testChainID = 1337

var testContract = common.HexToAddress("0xabcdef1234567890abcdef1234567890abcdef12")

type minedRecord struct {
	submitter common.Address
	score     uint8
	timestamp uint64
	proof     []byte
}

// fakeChain simulates the ledger network end to end: contract reads, gas
// estimation with contract-side validation, transaction mining with
// revert-on-duplicate semantics, and head progression for confirmations.
type fakeChain struct {
	t   *testing.T
	abi abi.ABI

	mu       sync.Mutex
	head     uint64
	records  map[[32]byte]*minedRecord
	count    uint64
	nonces   map[common.Address]uint64
	pending  []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	autoMine bool
	sendErr  error
}

func newFakeChain(t *testing.T, autoMine bool) *fakeChain {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(ledger.PredictionLedgerABI))
	if err != nil {
		t.Fatalf("failed to parse ABI: %v", err)
	}
	return &fakeChain{
		t:        t,
		abi:      parsed,
		head:     100,
		records:  make(map[[32]byte]*minedRecord),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		autoMine: autoMine,
	}
}

// validateSubmit mirrors the contract's write invariants against mined state
func (f *fakeChain) validateSubmit(id [32]byte, score uint8, proof []byte) error {
	if id == ([32]byte{}) {
		return errors.New("execution reverted: zero id")
	}
	if score > ledger.MaxScore {
		return errors.New("execution reverted: score out of range")
	}
	if len(proof) == 0 {
		return errors.New("execution reverted: empty proof")
	}
	if _, exists := f.records[id]; exists {
		return errors.New("execution reverted: prediction already exists")
	}
	return nil
}

func (f *fakeChain) decodeSubmit(data []byte) (id [32]byte, score uint8, proof []byte, err error) {
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return id, 0, nil, err
	}
	if method.Name != "submit" {
		return id, 0, nil, errors.New("unexpected method: " + method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return id, 0, nil, err
	}
	return args[0].([32]byte), args[1].(uint8), args[2].([]byte), nil
}

// --- ledger.Caller ---

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "exists":
		args, _ := method.Inputs.Unpack(msg.Data[4:])
		_, ok := f.records[args[0].([32]byte)]
		return method.Outputs.Pack(ok)
	case "get":
		args, _ := method.Inputs.Unpack(msg.Data[4:])
		rec, ok := f.records[args[0].([32]byte)]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(rec.submitter, rec.score, rec.timestamp, rec.proof)
	case "count":
		return method.Outputs.Pack(f.count)
	}
	return nil, errors.New("unexpected method: " + method.Name)
}

// --- submitter.Backend ---

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(1e18), big.NewInt(10)), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, score, proof, err := f.decodeSubmit(msg.Data)
	if err != nil {
		return 0, err
	}
	if err := f.validateSubmit(id, score, proof); err != nil {
		return 0, err
	}
	return 50000, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(testChainID)), tx)
	if err != nil {
		return err
	}
	f.nonces[sender] = tx.Nonce() + 1
	f.pending = append(f.pending, tx)

	if f.autoMine {
		f.mineLocked()
	}
	return nil
}

// --- tracker.Backend ---

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// The chain keeps producing blocks, so confirmations accrue.
	f.head++
	return f.head, nil
}

// submittedLog builds the PredictionSubmitted event log a successful write
// emits
func (f *fakeChain) submittedLog(id [32]byte, sender common.Address, score uint8, timestamp uint64) *types.Log {
	event := f.abi.Events["PredictionSubmitted"]
	data, err := event.Inputs.NonIndexed().Pack(score, timestamp)
	if err != nil {
		f.t.Errorf("failed to pack event data: %v", err)
	}
	return &types.Log{
		Address: testContract,
		Topics: []common.Hash{
			event.ID,
			common.Hash(id),
			common.BytesToHash(sender.Bytes()),
		},
		Data: data,
	}
}

// mineAll applies every pending transaction in broadcast order
func (f *fakeChain) mineAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mineLocked()
}

func (f *fakeChain) mineLocked() {
	f.head++
	for _, tx := range f.pending {
		sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(testChainID)), tx)
		if err != nil {
			f.t.Errorf("failed to recover sender: %v", err)
			continue
		}

		status := types.ReceiptStatusSuccessful
		var logs []*types.Log
		id, score, proof, err := f.decodeSubmit(tx.Data())
		if err != nil {
			status = types.ReceiptStatusFailed
		} else if err := f.validateSubmit(id, score, proof); err != nil {
			status = types.ReceiptStatusFailed
		} else {
			timestamp := uint64(time.Now().Unix())
			f.records[id] = &minedRecord{
				submitter: sender,
				score:     score,
				timestamp: timestamp,
				proof:     proof,
			}
			f.count++
			logs = append(logs, f.submittedLog(id, sender, score, timestamp))
		}

		f.receipts[tx.Hash()] = &types.Receipt{
			Status:      status,
			BlockNumber: new(big.Int).SetUint64(f.head),
			GasUsed:     42000,
			TxHash:      tx.Hash(),
			Logs:        logs,
		}
	}
	f.pending = nil
}
