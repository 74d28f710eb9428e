package fee

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/bursar/core"
)

const defaultBalanceBatchSize = 8

// Settlement outcomes
type SettleOutcome string

const (
	SettleApplied        SettleOutcome = "applied"
	SettleAlreadySettled SettleOutcome = "already_settled"
	SettleOverwritten    SettleOutcome = "overwritten" // dedicated path failed, balance overwritten instead
)

type SettleRequest struct {
	StudentID string
	InvoiceID string
	Semester  int
	Amount    decimal.Decimal // tuition/base component
	Due       decimal.Decimal // pushed alongside the balance on the fallback path
}

type BalanceReading struct {
	StudentID string          `json:"student_id"`
	Balance   decimal.Decimal `json:"balance"`
	Error     string          `json:"error,omitempty"`
}

// Ledger owns the students' running balances.
// It is the only path through which the engine mutates a balance.
type Ledger struct {
	repo      LedgerRepository
	profiles  ProfileRepository
	batchSize int
	logger    core.Logger
}

func NewLedger(repo LedgerRepository, profiles ProfileRepository, batchSize int, logger core.Logger) *Ledger {
	if batchSize <= 0 {
		batchSize = defaultBalanceBatchSize
	}
	return &Ledger{repo: repo, profiles: profiles, batchSize: batchSize, logger: logger}
}

// Balance reads the authoritative balance of the student,
// falling back to the balance cached on the profile when the store has no record.
func (l *Ledger) Balance(ctx context.Context, studentID string) (decimal.Decimal, error) {
	bal, err := l.repo.GetBalance(ctx, studentID)
	if err == nil {
		return nonNegative(bal), nil
	}
	if errors.Cause(err) != ErrBalanceNotFound {
		return decimal.Zero, errors.Wrap(err, "getting balance")
	}

	p, err := l.profiles.GetProfile(ctx, studentID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "getting profile")
	}
	return nonNegative(p.Balance), nil
}

// Settle applies the payment of invoice req.InvoiceID (req.Amount) to the student's balance for req.Semester.
// The dedicated settlement is idempotent per invoice; when it is unavailable the balance is
// overwritten with (current - amount) instead. If both paths fail an *Error of KindSettlementFailed is returned.
func (l *Ledger) Settle(ctx context.Context, req SettleRequest) (SettleOutcome, error) {
	applied, err := l.repo.SettleSemester(ctx, req)
	if err == nil {
		if !applied {
			return SettleAlreadySettled, nil
		}
		return SettleApplied, nil
	}
	l.logger.Warn(
		fmt.Sprintf("settling semester %d of %s (invoice %s): %v; overwriting balance", req.Semester, req.StudentID, req.InvoiceID, err),
		err,
	)

	current, err := l.Balance(ctx, req.StudentID)
	if err != nil {
		return "", newError(KindSettlementFailed, "payment recorded, balance not reconciled", err)
	}
	balance := nonNegative(current.Sub(req.Amount))
	req.Due = nonNegative(req.Due)
	if err = l.repo.OverwriteBalance(ctx, req, balance); err != nil {
		return "", newError(KindSettlementFailed, "payment recorded, balance not reconciled", err)
	}
	return SettleOverwritten, nil
}

// Balances reads the balances of several students in bounded batches.
// A failed read is recorded on its entry and does not stop the remaining reads.
func (l *Ledger) Balances(ctx context.Context, studentIDs []string) []BalanceReading {
	readings := make([]BalanceReading, len(studentIDs))

	for start := 0; start < len(studentIDs); start += l.batchSize {
		end := start + l.batchSize
		if end > len(studentIDs) {
			end = len(studentIDs)
		}

		var g errgroup.Group
		g.SetLimit(l.batchSize)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				id := studentIDs[i]
				readings[i].StudentID = id
				bal, err := l.Balance(ctx, id)
				if err != nil {
					l.logger.Warn(fmt.Sprintf("reading balance of %s: %v", id, err), err)
					readings[i].Error = errors.Cause(err).Error()
					return nil
				}
				readings[i].Balance = bal
				return nil
			})
		}
		_ = g.Wait()
	}
	return readings
}
