package submitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// NonceSource provides the network's view of an account's next nonce.
// *ethclient.Client satisfies it.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager serializes nonce assignment per signing account. Two
// concurrent submissions from the same account must never observe the same
// nonce, so each account's counter is owned by a dedicated mutex. Accounts
// never contend with each other.
type NonceManager struct {
	source NonceSource

	mu       sync.Mutex
	accounts map[common.Address]*accountNonce
}

type accountNonce struct {
	mu          sync.Mutex
	initialized bool
	next        uint64
}

// NewNonceManager creates a nonce manager backed by the given source
func NewNonceManager(source NonceSource) *NonceManager {
	return &NonceManager{
		source:   source,
		accounts: make(map[common.Address]*accountNonce),
	}
}

func (m *NonceManager) account(addr common.Address) *accountNonce {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[addr]
	if !ok {
		acct = &accountNonce{}
		m.accounts[addr] = acct
	}
	return acct
}

// Reserve assigns the next nonce for the account. The first reservation for
// an account seeds the counter from the network's pending nonce; every
// subsequent one is a local increment under the account lock. Broadcasting
// happens outside this lock.
func (m *NonceManager) Reserve(ctx context.Context, addr common.Address) (uint64, error) {
	acct := m.account(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if !acct.initialized {
		pending, err := m.source.PendingNonceAt(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch pending nonce for %s: %w", addr.Hex(), err)
		}
		acct.next = pending
		acct.initialized = true
		log.Debugf("Seeded nonce counter for %s at %d", addr.Hex(), pending)
	}

	nonce := acct.next
	acct.next++
	return nonce, nil
}

// Reset discards the local counter for an account so the next reservation
// refetches from the network. Called after a terminal broadcast failure,
// where the unused nonce would otherwise leave a gap that stalls every
// later transaction.
func (m *NonceManager) Reset(addr common.Address) {
	acct := m.account(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.initialized = false
	log.Debugf("Reset nonce counter for %s", addr.Hex())
}
