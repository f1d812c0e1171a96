package submitter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// InsufficientFundsError means the signing account cannot cover the
// estimated transaction fee. Fatal: the operator must top up out of band.
type InsufficientFundsError struct {
	Account  common.Address
	Balance  *big.Int
	Required *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s holds %s wei, needs %s wei",
		e.Account.Hex(), e.Balance.String(), e.Required.String())
}

// WouldRevertError means gas estimation determined the call would revert,
// typically because the ledger's own validation rejects the input. Fatal for
// the current input; no resources were spent on a broadcast.
type WouldRevertError struct {
	Reason error
}

func (e *WouldRevertError) Error() string {
	return fmt.Sprintf("transaction would revert: %v", e.Reason)
}

func (e *WouldRevertError) Unwrap() error { return e.Reason }

// BroadcastFailedError means the signed transaction could not be handed to
// the network after bounded retries. Retryable at a higher level with a
// fresh nonce.
type BroadcastFailedError struct {
	TxHash   common.Hash
	Attempts int
	Err      error
}

func (e *BroadcastFailedError) Error() string {
	return fmt.Sprintf("broadcast of %s failed after %d attempts: %v", e.TxHash.Hex(), e.Attempts, e.Err)
}

func (e *BroadcastFailedError) Unwrap() error { return e.Err }
