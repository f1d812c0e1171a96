package redis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// KeyBuilder provides methods to generate namespaced Redis keys
type KeyBuilder struct {
	Contract string
}

// checksumAddress converts an Ethereum address to checksummed format (EIP-55).
// If the input is not a valid Ethereum address, it returns the input unchanged.
// This ensures all Redis keys use consistent checksummed addresses.
func checksumAddress(addr string) string {
	if addr == "" {
		return addr
	}

	if common.IsHexAddress(addr) {
		address := common.HexToAddress(addr)
		return address.Hex() // .Hex() returns checksummed format (EIP-55)
	}

	return addr
}

// NewKeyBuilder creates a KeyBuilder namespaced by the ledger contract
// address, so handles from different deployments never collide.
func NewKeyBuilder(contract string) *KeyBuilder {
	return &KeyBuilder{Contract: checksumAddress(contract)}
}

// TransactionHandle returns the key for an in-flight or recently terminal
// transaction handle, keyed by transaction hash
func (kb *KeyBuilder) TransactionHandle(txHash string) string {
	return fmt.Sprintf("%s:txhandle:%s", kb.Contract, txHash)
}

// SubmissionsTimeline returns the key for the sorted set of recent
// submissions, scored by submission time
func (kb *KeyBuilder) SubmissionsTimeline() string {
	return fmt.Sprintf("%s:submissions:timeline", kb.Contract)
}
