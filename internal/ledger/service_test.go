package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/chipledger/internal/dedup"
	"github.com/punchamoorthee/chipledger/internal/domain"
	"github.com/punchamoorthee/chipledger/internal/ledger"
	"github.com/punchamoorthee/chipledger/internal/store"
)

func newTestService(t *testing.T) (*ledger.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	guard := dedup.NewLRUGuard(1024, time.Minute)
	return ledger.New(st, guard, nil), st
}

func payCmd(actor, target string, amount int64) domain.Command {
	return domain.Command{
		Kind:      domain.KindPay,
		RequestID: uuid.NewString(),
		ActorID:   actor,
		TargetID:  target,
		Amount:    amount,
	}
}

func ensureCmd(actor string) domain.Command {
	return domain.Command{
		Kind:      domain.KindEnsureAccount,
		RequestID: uuid.NewString(),
		ActorID:   actor,
	}
}

func mustCreate(t *testing.T, svc *ledger.Service, users ...string) {
	t.Helper()
	for _, u := range users {
		res := svc.Execute(context.Background(), ensureCmd(u))
		require.Equal(t, domain.StatusOK, res.Status)
	}
}

func sumBalances(t *testing.T, st *store.MemoryStore, users ...string) int64 {
	t.Helper()
	var sum int64
	for _, u := range users {
		bal, err := st.GetBalance(context.Background(), u)
		require.NoError(t, err)
		sum += bal
	}
	return sum
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res := svc.Execute(ctx, ensureCmd("U100"))
	require.Equal(t, domain.StatusOK, res.Status)
	require.Len(t, res.Balances, 1)
	assert.Equal(t, domain.StartingBalance, res.Balances[0].Balance)

	// Second creation reports AlreadyExists and must not re-seed.
	res = svc.Execute(ctx, ensureCmd("U100"))
	assert.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonAlreadyExists, res.Reason)

	bal, err := st.GetBalance(ctx, "U100")
	require.NoError(t, err)
	assert.Equal(t, domain.StartingBalance, bal)
}

func TestEnsureAccount_ForThirdParty(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	cmd := ensureCmd("U1")
	cmd.TargetID = "U2"
	res := svc.Execute(ctx, cmd)
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, "U2", res.Balances[0].UserID)

	_, err := st.GetBalance(ctx, "U1")
	assert.ErrorIs(t, err, store.ErrAccountNotFound, "actor account should not be created")
}

func TestBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "U1")

	res := svc.Execute(ctx, domain.Command{
		Kind: domain.KindBalance, RequestID: uuid.NewString(), ActorID: "U1",
	})
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, domain.StartingBalance, res.Balances[0].Balance)

	res = svc.Execute(ctx, domain.Command{
		Kind: domain.KindBalance, RequestID: uuid.NewString(), ActorID: "ghost",
	})
	assert.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonNotFound, res.Reason)
}

func TestPay_RejectionReasons(t *testing.T) {
	tests := []struct {
		name   string
		setup  []string
		cmd    domain.Command
		reason domain.Reason
	}{
		{
			name:   "zero amount",
			setup:  []string{"A", "B"},
			cmd:    payCmd("A", "B", 0),
			reason: domain.ReasonInvalidAmount,
		},
		{
			name:   "negative amount",
			setup:  []string{"A", "B"},
			cmd:    payCmd("A", "B", -5),
			reason: domain.ReasonInvalidAmount,
		},
		{
			name:   "self transfer",
			setup:  []string{"A"},
			cmd:    payCmd("A", "A", 10),
			reason: domain.ReasonInvalidAmount,
		},
		{
			name:   "payer missing",
			setup:  []string{"B"},
			cmd:    payCmd("A", "B", 10),
			reason: domain.ReasonPayerNotFound,
		},
		{
			name:   "insufficient funds",
			setup:  []string{"A", "B"},
			cmd:    payCmd("A", "B", 101),
			reason: domain.ReasonInsufficientFunds,
		},
		{
			// Insufficient funds wins over the missing recipient: the payer
			// is checked first.
			name:   "insufficient funds before recipient check",
			setup:  []string{"A"},
			cmd:    payCmd("A", "ghost", 500),
			reason: domain.ReasonInsufficientFunds,
		},
		{
			name:   "recipient missing",
			setup:  []string{"A"},
			cmd:    payCmd("A", "ghost", 10),
			reason: domain.ReasonRecipientNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestService(t)
			mustCreate(t, svc, tt.setup...)
			before := sumBalances(t, st, tt.setup...)

			res := svc.Execute(context.Background(), tt.cmd)
			assert.Equal(t, domain.StatusRejected, res.Status)
			assert.Equal(t, tt.reason, res.Reason)

			// A rejected transfer changes nothing.
			assert.Equal(t, before, sumBalances(t, st, tt.setup...))
		})
	}
}

func TestPay_Conservation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	users := []string{"A", "B", "C", "D"}
	mustCreate(t, svc, users...)

	total := sumBalances(t, st, users...)

	transfers := []struct {
		from, to string
		amount   int64
	}{
		{"A", "B", 30}, {"B", "C", 75}, {"C", "D", 10},
		{"D", "A", 5}, {"B", "A", 100}, {"C", "B", 1},
	}
	for _, tr := range transfers {
		res := svc.Execute(ctx, payCmd(tr.from, tr.to, tr.amount))
		require.Equal(t, domain.StatusOK, res.Status)
	}

	assert.Equal(t, total, sumBalances(t, st, users...),
		"total balance must be invariant across successful transfers")
}

func TestPay_DuplicateSuppression(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "A", "B")

	cmd := payCmd("A", "B", 30)
	res := svc.Execute(ctx, cmd)
	require.Equal(t, domain.StatusOK, res.Status)

	// Redelivery of the same request id must not re-apply the transfer.
	res = svc.Execute(ctx, cmd)
	assert.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonDuplicateRequest, res.Reason)

	balA, _ := st.GetBalance(ctx, "A")
	balB, _ := st.GetBalance(ctx, "B")
	assert.Equal(t, int64(70), balA)
	assert.Equal(t, int64(130), balB)
}

func TestAdminGate(t *testing.T) {
	for _, kind := range []domain.CommandKind{domain.KindInflation, domain.KindReset} {
		t.Run(string(kind), func(t *testing.T) {
			svc, st := newTestService(t)
			ctx := context.Background()
			mustCreate(t, svc, "A", "B")

			res := svc.Execute(ctx, domain.Command{
				Kind:      kind,
				RequestID: uuid.NewString(),
				ActorID:   "A",
				IsAdmin:   false,
				Roster:    []string{"A", "B"},
			})
			assert.Equal(t, domain.StatusRejected, res.Status)
			assert.Equal(t, domain.ReasonForbidden, res.Reason)

			// Denied means no side effects at all.
			assert.Equal(t, 2*domain.StartingBalance, sumBalances(t, st, "A", "B"))
		})
	}
}

func TestInflation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "B", "A", "C")

	res := svc.Execute(ctx, domain.Command{
		Kind: domain.KindInflation, RequestID: uuid.NewString(), ActorID: "A", IsAdmin: true,
	})
	require.Equal(t, domain.StatusOK, res.Status)
	require.Len(t, res.Balances, 3)

	// Deterministic enumeration order, every account credited.
	assert.Equal(t, "A", res.Balances[0].UserID)
	assert.Equal(t, "B", res.Balances[1].UserID)
	assert.Equal(t, "C", res.Balances[2].UserID)
	for _, row := range res.Balances {
		assert.Equal(t, domain.StartingBalance+domain.InflationIncrement, row.Balance)
		assert.Empty(t, row.Err)
	}
}

func TestReset_ReseedsRoster(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "A", "B")

	// Drain A so the reseed is observable.
	res := svc.Execute(ctx, payCmd("A", "B", 100))
	require.Equal(t, domain.StatusOK, res.Status)

	res = svc.Execute(ctx, domain.Command{
		Kind:      domain.KindReset,
		RequestID: uuid.NewString(),
		ActorID:   "A",
		IsAdmin:   true,
		Roster:    []string{"A", "B", "C"},
	})
	require.Equal(t, domain.StatusOK, res.Status)
	require.Len(t, res.Balances, 3)

	for _, u := range []string{"A", "B", "C"} {
		bal, err := st.GetBalance(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, domain.StartingBalance, bal, "roster member %s reseeded", u)
	}
}

func TestEndToEndScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "A", "B")

	res := svc.Execute(ctx, payCmd("A", "B", 30))
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, int64(70), res.Balances[0].Balance)
	assert.Equal(t, int64(130), res.Balances[1].Balance)

	res = svc.Execute(ctx, payCmd("B", "A", 200))
	assert.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.ReasonInsufficientFunds, res.Reason)

	res = svc.Execute(ctx, domain.Command{
		Kind: domain.KindInflation, RequestID: uuid.NewString(), ActorID: "admin", IsAdmin: true,
	})
	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, int64(80), res.Balances[0].Balance)
	assert.Equal(t, int64(140), res.Balances[1].Balance)
}

func TestConcurrentDrain_AtMostOneSucceeds(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "payer", "R1", "R2")

	// Two transfers of 70 against a balance of 100: only one may commit.
	var wg sync.WaitGroup
	results := make([]domain.Result, 2)
	for i, recipient := range []string{"R1", "R2"} {
		wg.Add(1)
		go func(i int, recipient string) {
			defer wg.Done()
			results[i] = svc.Execute(ctx, payCmd("payer", recipient, 70))
		}(i, recipient)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Status == domain.StatusOK {
			succeeded++
		} else {
			assert.Equal(t, domain.ReasonInsufficientFunds, res.Reason)
		}
	}
	assert.Equal(t, 1, succeeded)

	bal, err := st.GetBalance(ctx, "payer")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bal, int64(0), "payer must never be overdrawn")
	assert.Equal(t, int64(30), bal)
}

func TestConcurrentDuplicates_ExactlyOnce(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "A", "B")

	cmd := payCmd("A", "B", 10)

	const workers = 16
	var wg sync.WaitGroup
	applied := make(chan domain.Result, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied <- svc.Execute(ctx, cmd)
		}()
	}
	wg.Wait()
	close(applied)

	succeeded := 0
	for res := range applied {
		if res.Status == domain.StatusOK {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "one delivery applies, the rest are duplicates")

	balA, _ := st.GetBalance(ctx, "A")
	assert.Equal(t, int64(90), balA)
}

// faultyStore fails every Transfer, simulating a storage outage.
type faultyStore struct {
	*store.MemoryStore
}

var errDown = errors.New("connection refused")

func (f *faultyStore) Transfer(context.Context, string, string, int64) (int64, int64, error) {
	return 0, 0, errDown
}

func TestStorageFault_ReleasesRequestID(t *testing.T) {
	mem := store.NewMemoryStore()
	guard := dedup.NewLRUGuard(16, time.Minute)
	ctx := context.Background()

	_, _, err := mem.EnsureAccount(ctx, "A")
	require.NoError(t, err)
	_, _, err = mem.EnsureAccount(ctx, "B")
	require.NoError(t, err)

	broken := ledger.New(&faultyStore{mem}, guard, nil)
	cmd := payCmd("A", "B", 10)

	res := broken.Execute(ctx, cmd)
	assert.Equal(t, domain.StatusUnavailable, res.Status)

	// The same request id must be retryable once the store recovers.
	healthy := ledger.New(mem, guard, nil)
	res = healthy.Execute(ctx, cmd)
	assert.Equal(t, domain.StatusOK, res.Status)
}
