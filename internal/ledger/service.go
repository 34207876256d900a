// Package ledger implements the command core: dispatch, the transfer engine,
// bulk operations and the admin gate.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/punchamoorthee/chipledger/internal/dedup"
	"github.com/punchamoorthee/chipledger/internal/domain"
	"github.com/punchamoorthee/chipledger/internal/metrics"
	"github.com/punchamoorthee/chipledger/internal/store"
)

// Service executes structured commands against the account store. It is safe
// for concurrent use; per-account serialization is the store's contract.
type Service struct {
	store store.Store
	guard dedup.Guard
	log   *slog.Logger
}

// New creates a Service. A nil logger falls back to slog.Default.
func New(st store.Store, guard dedup.Guard, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, guard: guard, log: log}
}

// Authorize is the admin gate: a pure predicate over the caller-resolved
// admin flag. Privileged commands short-circuit on a false before any store
// mutation.
func Authorize(isAdmin bool) bool {
	return isAdmin
}

// Execute runs one command end to end: duplicate suppression, authorization
// for privileged kinds, then the operation itself. A storage fault yields
// StatusUnavailable and releases the request id so the caller can retry.
func (s *Service) Execute(ctx context.Context, cmd domain.Command) domain.Result {
	fresh, err := s.guard.ShouldProcess(ctx, cmd.RequestID)
	if err != nil {
		s.log.Error("dedup guard unavailable", "request_id", cmd.RequestID, "err", err)
		return unavailable()
	}
	if !fresh {
		metrics.DuplicatesTotal.Inc()
		return rejected(domain.ReasonDuplicateRequest)
	}

	res := s.dispatch(ctx, cmd)
	if res.Status == domain.StatusUnavailable {
		s.guard.Forget(ctx, cmd.RequestID)
	}
	metrics.CommandsTotal.WithLabelValues(string(cmd.Kind), string(res.Status)).Inc()
	return res
}

func (s *Service) dispatch(ctx context.Context, cmd domain.Command) domain.Result {
	switch cmd.Kind {
	case domain.KindPay:
		return s.pay(ctx, cmd)
	case domain.KindBalance:
		return s.balance(ctx, cmd)
	case domain.KindEnsureAccount:
		return s.ensureAccount(ctx, cmd)
	case domain.KindInflation:
		if !Authorize(cmd.IsAdmin) {
			return rejected(domain.ReasonForbidden)
		}
		return s.inflation(ctx)
	case domain.KindReset:
		if !Authorize(cmd.IsAdmin) {
			return rejected(domain.ReasonForbidden)
		}
		return s.reset(ctx, cmd.Roster)
	default:
		return rejected(domain.ReasonNotFound)
	}
}

// pay moves Amount from the actor to the target. Self-transfer is rejected
// as an invalid amount rather than double-applying a write.
func (s *Service) pay(ctx context.Context, cmd domain.Command) domain.Result {
	if cmd.Amount <= 0 || cmd.ActorID == cmd.TargetID {
		return rejected(domain.ReasonInvalidAmount)
	}

	payerBal, recipientBal, err := s.store.Transfer(ctx, cmd.ActorID, cmd.TargetID, cmd.Amount)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPayerNotFound):
			return rejected(domain.ReasonPayerNotFound)
		case errors.Is(err, store.ErrInsufficientFunds):
			return rejected(domain.ReasonInsufficientFunds)
		case errors.Is(err, store.ErrRecipientNotFound):
			return rejected(domain.ReasonRecipientNotFound)
		}
		s.log.Error("transfer failed", "payer", cmd.ActorID, "recipient", cmd.TargetID, "err", err)
		return unavailable()
	}

	metrics.TransferAmount.Observe(float64(cmd.Amount))
	return domain.Result{
		Status: domain.StatusOK,
		Balances: []domain.AccountBalance{
			{UserID: cmd.ActorID, Balance: payerBal},
			{UserID: cmd.TargetID, Balance: recipientBal},
		},
	}
}

func (s *Service) balance(ctx context.Context, cmd domain.Command) domain.Result {
	balance, err := s.store.GetBalance(ctx, cmd.ActorID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return rejected(domain.ReasonNotFound)
		}
		s.log.Error("balance read failed", "user", cmd.ActorID, "err", err)
		return unavailable()
	}
	return domain.Result{
		Status:   domain.StatusOK,
		Balances: []domain.AccountBalance{{UserID: cmd.ActorID, Balance: balance}},
	}
}

// ensureAccount creates the target account, or the actor's own when no
// target is named.
func (s *Service) ensureAccount(ctx context.Context, cmd domain.Command) domain.Result {
	userID := cmd.TargetID
	if userID == "" {
		userID = cmd.ActorID
	}

	balance, created, err := s.store.EnsureAccount(ctx, userID)
	if err != nil {
		s.log.Error("account creation failed", "user", userID, "err", err)
		return unavailable()
	}
	if !created {
		return rejected(domain.ReasonAlreadyExists)
	}
	return domain.Result{
		Status:   domain.StatusOK,
		Balances: []domain.AccountBalance{{UserID: userID, Balance: balance}},
	}
}

// inflation credits every existing account. Individual failures are carried
// in the per-account rows, not surfaced as a command failure.
func (s *Service) inflation(ctx context.Context) domain.Result {
	results, err := s.store.ForEachAccount(ctx, func(balance int64) int64 {
		return balance + domain.InflationIncrement
	})
	if err != nil {
		s.log.Error("inflation pass failed", "err", err)
		return unavailable()
	}
	return domain.Result{Status: domain.StatusOK, Balances: bulkBalances(results)}
}

// reset wipes the store and reseeds every roster member at the starting
// balance.
func (s *Service) reset(ctx context.Context, roster []string) domain.Result {
	if err := s.store.ResetAll(ctx); err != nil {
		s.log.Error("store reset failed", "err", err)
		return unavailable()
	}

	balances := make([]domain.AccountBalance, 0, len(roster))
	for _, userID := range roster {
		balance, _, err := s.store.EnsureAccount(ctx, userID)
		row := domain.AccountBalance{UserID: userID, Balance: balance}
		if err != nil {
			s.log.Error("reseed failed", "user", userID, "err", err)
			row.Err = err.Error()
		}
		balances = append(balances, row)
	}
	return domain.Result{Status: domain.StatusOK, Balances: balances}
}

func bulkBalances(results []store.BulkResult) []domain.AccountBalance {
	balances := make([]domain.AccountBalance, 0, len(results))
	for _, r := range results {
		row := domain.AccountBalance{UserID: r.UserID, Balance: r.Balance}
		if r.Err != nil {
			row.Err = r.Err.Error()
		}
		balances = append(balances, row)
	}
	return balances
}

func rejected(reason domain.Reason) domain.Result {
	return domain.Result{Status: domain.StatusRejected, Reason: reason}
}

func unavailable() domain.Result {
	return domain.Result{Status: domain.StatusUnavailable}
}
