package publisher

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/proof"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/query"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/submitter"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/tracker"
)

type testPipeline struct {
	publisher *Publisher
	ledger    *ledger.Client
	query     *query.Service
	store     *MemoryHandleStore
}

// newTestPipeline assembles the full publish pipeline over a fake chain with
// a fresh signing identity
func newTestPipeline(t *testing.T, chain *fakeChain, store *MemoryHandleStore) *testPipeline {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	ledgerClient, err := ledger.NewClient(chain, testContract)
	if err != nil {
		t.Fatalf("failed to create ledger client: %v", err)
	}

	sub, err := submitter.New(chain, ledgerClient, hex.EncodeToString(crypto.FromECDSA(key)), submitter.Config{
		ChainID:             testChainID,
		GasBufferPercent:    20,
		MaxBroadcastRetries: 2,
		BroadcastRetryDelay: time.Millisecond,
		BalanceCheckEnabled: true,
	})
	if err != nil {
		t.Fatalf("failed to create submitter: %v", err)
	}

	trk := tracker.New(chain, tracker.Config{
		ConfirmationDepth:   2,
		ConfirmationTimeout: 2 * time.Second,
		PollInterval:        time.Millisecond,
		MaxPollInterval:     5 * time.Millisecond,
	})

	if store == nil {
		store = NewMemoryHandleStore(100)
	}

	pub := New(proof.NewBuilder(), sub, trk, ledgerClient, store, Config{
		ConfirmationTimeout: 2 * time.Second,
	})

	return &testPipeline{
		publisher: pub,
		ledger:    ledgerClient,
		query:     query.NewService(ledgerClient),
		store:     store,
	}
}

func TestPublishEndToEnd(t *testing.T) {
	chain := newFakeChain(t, true)
	pipeline := newTestPipeline(t, chain, nil)
	ctx := context.Background()

	handle, err := pipeline.publisher.Publish(ctx, &PublishRequest{
		ProjectID:           "proj-42",
		Score:               92,
		FeatureExplanations: map[string]float64{"traction": 0.31, "team_size": -0.12},
		Metadata:            map[string]string{"model_version": "v1.0.0"},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if handle.Status != tracker.StatusPending {
		t.Fatalf("fresh handle should be pending, got %s", handle.Status)
	}
	if handle.TxHash == "" {
		t.Fatal("handle missing transaction hash")
	}

	wantID, _ := proof.DeriveID("proj-42")
	if handle.LedgerID != wantID {
		t.Fatal("handle carries the wrong ledger id")
	}

	pipeline.publisher.Wait()

	stored, err := pipeline.store.Get(ctx, handle.TxHash)
	if err != nil {
		t.Fatalf("stored handle lookup failed: %v", err)
	}
	if stored.Status != tracker.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", stored.Status)
	}
	if stored.Confirmations < 2 {
		t.Fatalf("confirmed below depth: %d", stored.Confirmations)
	}

	// The record is now canonical: readable, countable, verifiable.
	record, err := pipeline.query.Lookup(ctx, wantID)
	if err != nil {
		t.Fatalf("Lookup after confirmation failed: %v", err)
	}
	if record.Score != 92 {
		t.Fatalf("expected score 92, got %d", record.Score)
	}
	if record.Timestamp == 0 {
		t.Fatal("ledger must assign a timestamp")
	}

	count, err := pipeline.query.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	verified, err := pipeline.query.Verify(ctx, wantID, record.Proof)
	if err != nil || !verified {
		t.Fatalf("stored proof should verify: verified=%v err=%v", verified, err)
	}
	verified, err = pipeline.query.Verify(ctx, wantID, []byte{0xff, 0xff})
	if err != nil || verified {
		t.Fatalf("wrong proof must not verify: verified=%v err=%v", verified, err)
	}
}

func TestPublishDuplicateRejected(t *testing.T) {
	chain := newFakeChain(t, true)
	pipeline := newTestPipeline(t, chain, nil)
	ctx := context.Background()

	first, err := pipeline.publisher.Publish(ctx, &PublishRequest{ProjectID: "proj-42", Score: 92})
	if err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	pipeline.publisher.Wait()

	_, err = pipeline.publisher.Publish(ctx, &PublishRequest{ProjectID: "proj-42", Score: 10})
	var validationErr *ledger.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError on duplicate, got %v", err)
	}

	// Immutability: the first record is untouched.
	id, _ := proof.DeriveID("proj-42")
	record, err := pipeline.query.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if record.Score != first.Score {
		t.Fatalf("stored record changed after duplicate attempt: %d vs %d", record.Score, first.Score)
	}

	count, _ := pipeline.query.Count(ctx)
	if count != 1 {
		t.Fatalf("duplicate attempt must not increment the counter: %d", count)
	}
}

func TestPublishScoreBoundaries(t *testing.T) {
	chain := newFakeChain(t, true)
	pipeline := newTestPipeline(t, chain, nil)
	ctx := context.Background()

	for _, score := range []uint8{0, 100} {
		project := fmt.Sprintf("boundary-%d", score)
		if _, err := pipeline.publisher.Publish(ctx, &PublishRequest{ProjectID: project, Score: score}); err != nil {
			t.Fatalf("score %d should publish: %v", score, err)
		}
	}

	_, err := pipeline.publisher.Publish(ctx, &PublishRequest{ProjectID: "over", Score: 101})
	var inputErr *proof.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("score 101: expected InvalidInputError, got %v", err)
	}

	pipeline.publisher.Wait()
}

func TestPublishEmptyProject(t *testing.T) {
	chain := newFakeChain(t, true)
	pipeline := newTestPipeline(t, chain, nil)

	_, err := pipeline.publisher.Publish(context.Background(), &PublishRequest{ProjectID: "", Score: 50})
	var inputErr *proof.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InvalidInputError for empty project, got %v", err)
	}
}

func TestPublishBroadcastFailure(t *testing.T) {
	chain := newFakeChain(t, true)
	chain.sendErr = errors.New("connection reset")
	pipeline := newTestPipeline(t, chain, nil)

	_, err := pipeline.publisher.Publish(context.Background(), &PublishRequest{ProjectID: "proj-42", Score: 92})
	var broadcastErr *submitter.BroadcastFailedError
	if !errors.As(err, &broadcastErr) {
		t.Fatalf("expected BroadcastFailedError, got %v", err)
	}
}

// Two identities race to publish the same prediction id: exactly one write
// lands, the loser reverts, and no partial record is observable.
func TestConcurrentSameIDRace(t *testing.T) {
	chain := newFakeChain(t, false) // manual mining so both pass estimation
	store := NewMemoryHandleStore(100)
	alice := newTestPipeline(t, chain, store)
	bob := newTestPipeline(t, chain, store)
	ctx := context.Background()

	h1, err := alice.publisher.Publish(ctx, &PublishRequest{ProjectID: "proj-42", Score: 92})
	if err != nil {
		t.Fatalf("alice publish failed: %v", err)
	}
	h2, err := bob.publisher.Publish(ctx, &PublishRequest{ProjectID: "proj-42", Score: 37})
	if err != nil {
		t.Fatalf("bob publish failed: %v", err)
	}

	chain.mineAll()
	alice.publisher.Wait()
	bob.publisher.Wait()

	s1, err := store.Get(ctx, h1.TxHash)
	if err != nil {
		t.Fatalf("handle lookup failed: %v", err)
	}
	s2, err := store.Get(ctx, h2.TxHash)
	if err != nil {
		t.Fatalf("handle lookup failed: %v", err)
	}

	if s1.Status != tracker.StatusConfirmed || s2.Status != tracker.StatusReverted {
		t.Fatalf("expected first-writer win: got %s and %s", s1.Status, s2.Status)
	}

	// The surviving record belongs to the winner.
	id, _ := proof.DeriveID("proj-42")
	record, err := alice.query.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if record.Score != 92 {
		t.Fatalf("loser's write leaked into the ledger: score %d", record.Score)
	}

	count, _ := alice.query.Count(ctx)
	if count != 1 {
		t.Fatalf("counter must increment exactly once, got %d", count)
	}
}

func TestPublishDroppedOnTimeout(t *testing.T) {
	chain := newFakeChain(t, false) // never mined
	pipeline := newTestPipeline(t, chain, nil)
	ctx := context.Background()

	// Shrink the tracker deadline for the test.
	pipeline.publisher.cfg.ConfirmationTimeout = 50 * time.Millisecond
	pipeline.publisher.tracker = tracker.New(chain, tracker.Config{
		ConfirmationDepth:   2,
		ConfirmationTimeout: 50 * time.Millisecond,
		PollInterval:        time.Millisecond,
		MaxPollInterval:     5 * time.Millisecond,
	})

	handle, err := pipeline.publisher.Publish(ctx, &PublishRequest{ProjectID: "proj-42", Score: 92})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	pipeline.publisher.Wait()

	stored, err := pipeline.store.Get(ctx, handle.TxHash)
	if err != nil {
		t.Fatalf("handle lookup failed: %v", err)
	}
	if stored.Status != tracker.StatusDropped {
		t.Fatalf("expected dropped, got %s", stored.Status)
	}
}

func TestStatusUnknownHash(t *testing.T) {
	chain := newFakeChain(t, true)
	pipeline := newTestPipeline(t, chain, nil)

	_, err := pipeline.publisher.Status(context.Background(), "0xdeadbeef")
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
}

func TestStatusReportsLiveConfirmations(t *testing.T) {
	chain := newFakeChain(t, false)
	pipeline := newTestPipeline(t, chain, nil)
	ctx := context.Background()

	handle, err := pipeline.publisher.Publish(ctx, &PublishRequest{ProjectID: "proj-42", Score: 92})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	status, err := pipeline.publisher.Status(ctx, handle.TxHash)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != tracker.StatusPending {
		t.Fatalf("unmined transaction should be pending, got %s", status.Status)
	}
	if status.Confirmations != 0 {
		t.Fatalf("unmined transaction should have 0 confirmations, got %d", status.Confirmations)
	}

	chain.mineAll()
	pipeline.publisher.Wait()
}
