package infrastructure_test

import (
	"context"
	"errors"
	"testing"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/dbtest"
	"lensmart/internal/service/loyalty/domain"
	"lensmart/internal/service/loyalty/infrastructure"
)

func TestCreditAndDebit(t *testing.T) {
	db := dbtest.Open(t)
	ledger := infrastructure.NewGormPointsLedger(db)
	ctx := context.Background()

	balance, err := ledger.Credit(ctx, "opt-1", 100, domain.ReasonOrderItemConfirmed, "item-1")
	if err != nil || balance != 100 {
		t.Fatalf("Credit = %d, %v", balance, err)
	}
	balance, err = ledger.TryDebit(ctx, "opt-1", 80, domain.ReasonRedemptionApproved, "red-1")
	if err != nil || balance != 20 {
		t.Fatalf("TryDebit = %d, %v", balance, err)
	}

	_, err = ledger.TryDebit(ctx, "opt-1", 50, domain.ReasonRedemptionApproved, "red-2")
	var pointsErr *apperr.InsufficientPointsError
	if !errors.As(err, &pointsErr) {
		t.Fatalf("err = %v, want InsufficientPointsError", err)
	}
	if pointsErr.Needed != 50 || pointsErr.Available != 20 || pointsErr.Shortfall() != 30 {
		t.Errorf("shortfall = %+v", pointsErr)
	}

	sum, err := ledger.Balance(ctx, "opt-1")
	if err != nil || sum != 20 {
		t.Fatalf("Balance = %d, %v", sum, err)
	}
}

func TestDebitUnknownAccountIsInsufficient(t *testing.T) {
	db := dbtest.Open(t)
	ledger := infrastructure.NewGormPointsLedger(db)

	_, err := ledger.TryDebit(context.Background(), "opt-new", 10, domain.ReasonRedemptionApproved, "red-1")
	var pointsErr *apperr.InsufficientPointsError
	if !errors.As(err, &pointsErr) || pointsErr.Available != 0 {
		t.Fatalf("err = %v", err)
	}
}

func TestDuplicateReferenceIsRejected(t *testing.T) {
	db := dbtest.Open(t)
	ledger := infrastructure.NewGormPointsLedger(db)
	tx := database.NewTransactor(db)
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, "opt-1", 30, domain.ReasonOrderItemConfirmed, "item-1"); err != nil {
		t.Fatal(err)
	}
	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := ledger.Credit(ctx, "opt-1", 30, domain.ReasonOrderItemConfirmed, "item-1")
		return err
	})
	if !errors.Is(err, apperr.ErrAlreadyResolved) {
		t.Fatalf("err = %v, want already resolved", err)
	}

	// 不同 reason 的同一引用不冲突
	if _, err := ledger.Credit(ctx, "opt-1", 5, domain.ReasonRedemptionApproved, "item-1"); err != nil {
		t.Fatalf("distinct reason: %v", err)
	}

	audit, err := ledger.Audit(ctx, "opt-1")
	if err != nil {
		t.Fatal(err)
	}
	if !audit.Consistent() || audit.ColumnBalance != 35 || audit.Entries != 2 {
		t.Errorf("audit = %+v", audit)
	}
}

func TestFailedDebitLeavesNoEntry(t *testing.T) {
	db := dbtest.Open(t)
	ledger := infrastructure.NewGormPointsLedger(db)
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, "opt-1", 10, domain.ReasonOrderItemConfirmed, "item-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.TryDebit(ctx, "opt-1", 11, domain.ReasonRedemptionApproved, "red-1"); !errors.Is(err, apperr.ErrInsufficientPoints) {
		t.Fatalf("err = %v", err)
	}

	entries, err := ledger.History(ctx, "opt-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Delta != 10 || entries[0].Reason != domain.ReasonOrderItemConfirmed {
		t.Errorf("history = %+v", entries)
	}
}

func TestHistoryLimit(t *testing.T) {
	db := dbtest.Open(t)
	ledger := infrastructure.NewGormPointsLedger(db)
	ctx := context.Background()

	for _, ref := range []string{"a", "b", "c"} {
		if _, err := ledger.Credit(ctx, "opt-1", 1, domain.ReasonOrderItemConfirmed, ref); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := ledger.History(ctx, "opt-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}
}

func TestAuditUnknownAccount(t *testing.T) {
	db := dbtest.Open(t)
	audit, err := infrastructure.NewGormPointsLedger(db).Audit(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if !audit.Consistent() || audit.Entries != 0 {
		t.Errorf("audit = %+v", audit)
	}
}
