package publisher

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/tracker"
)

// PublishRequest is the intake tuple from the web layer. It is held only
// until the transaction is submitted or permanently fails, and is never
// persisted beyond logs.
type PublishRequest struct {
	ProjectID           string
	Score               uint8
	FeatureExplanations map[string]float64
	Metadata            map[string]string
}

// TransactionHandle tracks one in-flight submission through to its terminal
// state. Handles are safe to lose: the ledger can always be re-queried by id.
type TransactionHandle struct {
	TxHash        string         `json:"tx_hash"`
	LedgerID      common.Hash    `json:"ledger_id"`
	ProjectID     string         `json:"project_id"`
	Score         uint8          `json:"score"`
	Nonce         uint64         `json:"nonce"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	Confirmations uint64         `json:"confirmations"`
	Status        tracker.Status `json:"status"`
}
