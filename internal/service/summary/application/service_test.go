package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/dbtest"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
	loyaltyinfra "lensmart/internal/service/loyalty/infrastructure"
	orderdomain "lensmart/internal/service/order/domain"
	orderinfra "lensmart/internal/service/order/infrastructure"
	redemptiondomain "lensmart/internal/service/redemption/domain"
	redemptioninfra "lensmart/internal/service/redemption/infrastructure"
	"lensmart/internal/service/summary/application"
	"lensmart/internal/service/summary/infrastructure"
)

var admin = auth.Actor{UserID: "admin-1", Role: auth.RoleAdmin}

// seed：opt-1 一张订单三行（确认 / 取消 / 待处理），opt-2 一行待处理；
// opt-1 入账 30 扣减 10；opt-1 一张已批准兑换单，opt-2 一张待处理
func seed(t *testing.T) *application.SummaryApplicationService {
	t.Helper()
	db := dbtest.Open(t)
	ctx := context.Background()
	now := time.Now().UTC()

	prices := map[string]decimal.Decimal{"lens-1": decimal.RequireFromString("12.50"), "case-1": decimal.NewFromInt(4)}
	orders := orderinfra.NewGormOrderRepository(db)
	o1, err := orderdomain.NewOrder("opt-1", []orderdomain.Line{
		{ProductID: "lens-1", Quantity: 3},
		{ProductID: "case-1", Quantity: 1},
		{ProductID: "case-1", Quantity: 2},
	}, prices, now)
	if err != nil {
		t.Fatal(err)
	}
	o2, err := orderdomain.NewOrder("opt-2", []orderdomain.Line{{ProductID: "lens-1", Quantity: 1}}, prices, now)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range []*orderdomain.Order{o1, o2} {
		if err := orders.Create(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	if err := orders.ResolveItem(ctx, o1.Items[0].ID, orderdomain.ItemConfirmed, "admin-1", now); err != nil {
		t.Fatal(err)
	}
	if err := orders.ResolveItem(ctx, o1.Items[1].ID, orderdomain.ItemCancelled, "admin-1", now); err != nil {
		t.Fatal(err)
	}

	catalog := map[string]*loyaltydomain.LoyaltyProduct{"lp-cloth": {ID: "lp-cloth", PointsCost: 10, IsActive: true}}
	reds := redemptioninfra.NewGormRedemptionRepository(db)
	r1, _ := redemptiondomain.NewRedemption("opt-1", []redemptiondomain.Line{{LoyaltyProductID: "lp-cloth", Quantity: 1}}, catalog, now)
	r2, _ := redemptiondomain.NewRedemption("opt-2", []redemptiondomain.Line{{LoyaltyProductID: "lp-cloth", Quantity: 1}}, catalog, now)
	for _, r := range []*redemptiondomain.Redemption{r1, r2} {
		if err := reds.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := reds.Resolve(ctx, r1.ID, redemptiondomain.StatusApproved, "admin-1", now); err != nil {
		t.Fatal(err)
	}

	points := loyaltyinfra.NewGormPointsLedger(db)
	if _, err := points.Credit(ctx, "opt-1", 30, loyaltydomain.ReasonOrderItemConfirmed, o1.Items[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := points.TryDebit(ctx, "opt-1", 10, loyaltydomain.ReasonRedemptionApproved, r1.ID); err != nil {
		t.Fatal(err)
	}

	return application.NewSummaryApplicationService(infrastructure.NewGormSummaryQueries(db), noop.NewTracerProvider().Tracer("test"))
}

func TestGlobalSummary(t *testing.T) {
	svc := seed(t)
	s, err := svc.Summary(context.Background(), admin, "")
	if err != nil {
		t.Fatal(err)
	}

	g := s.Global
	if g.OrderItems.Pending != 2 || g.OrderItems.Confirmed != 1 || g.OrderItems.Cancelled != 1 {
		t.Errorf("order items = %+v", g.OrderItems)
	}
	if g.Redemptions.Pending != 1 || g.Redemptions.Approved != 1 {
		t.Errorf("redemptions = %+v", g.Redemptions)
	}
	if g.PointsIssued != 30 || g.PointsRedeemed != 10 {
		t.Errorf("points = %d / %d", g.PointsIssued, g.PointsRedeemed)
	}
	// 已取消的 case-1 x1 不计入
	if !g.OrderValue.Confirmed.Equal(decimal.RequireFromString("37.5")) {
		t.Errorf("confirmed value = %s", g.OrderValue.Confirmed)
	}
	if !g.OrderValue.Pending.Equal(decimal.RequireFromString("20.5")) {
		t.Errorf("pending value = %s", g.OrderValue.Pending)
	}

	if len(s.ByOptician) != 2 || s.ByOptician[0].OpticianID != "opt-1" || s.ByOptician[1].OpticianID != "opt-2" {
		t.Fatalf("by optician = %+v", s.ByOptician)
	}
	if s.ByOptician[1].OrderItems.Pending != 1 || s.ByOptician[1].PointsIssued != 0 {
		t.Errorf("opt-2 = %+v", s.ByOptician[1].Figures)
	}
}

func TestOpticianSummary(t *testing.T) {
	svc := seed(t)
	opt := auth.Actor{UserID: "opt-2", Role: auth.RoleOptician}

	s, err := svc.Summary(context.Background(), opt, "opt-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(s.ByOptician) != 1 || s.Global.OrderItems.Pending != 1 || s.Global.Redemptions.Pending != 1 {
		t.Errorf("summary = %+v", s)
	}

	if _, err := svc.Summary(context.Background(), opt, "opt-1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("foreign summary err = %v", err)
	}
	if _, err := svc.Summary(context.Background(), opt, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("global summary err = %v", err)
	}
}
