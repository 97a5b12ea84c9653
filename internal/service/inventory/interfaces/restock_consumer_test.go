package interfaces_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/dbtest"
	"lensmart/internal/service/inventory/domain"
	"lensmart/internal/service/inventory/infrastructure"
	"lensmart/internal/service/inventory/interfaces"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
	loyaltyinfra "lensmart/internal/service/loyalty/infrastructure"
)

// fakeReader 依次返回预置消息，耗尽后阻塞到 ctx 取消
type fakeReader struct {
	msgs      chan kafka.Message
	committed chan kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed <- m
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func setup(t *testing.T) (*interfaces.RestockConsumer, *infrastructure.GormInventoryLedger, *loyaltyinfra.GormLoyaltyCatalog, *fakeReader) {
	t.Helper()
	db := dbtest.Open(t)
	products := infrastructure.NewGormInventoryLedger(db)
	catalog := loyaltyinfra.NewGormLoyaltyCatalog(db)
	ctx := context.Background()

	if err := products.Create(ctx, &domain.Product{ID: "lens-1", Name: "Lens", Price: decimal.NewFromInt(10), StockQty: 1}); err != nil {
		t.Fatal(err)
	}
	linked := "lens-1"
	if err := catalog.Create(ctx, &loyaltydomain.LoyaltyProduct{ID: "lp-linked", Name: "Linked", ProductID: &linked, PointsCost: 10, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if err := catalog.Create(ctx, &loyaltydomain.LoyaltyProduct{ID: "lp-own", Name: "Cloth", PointsCost: 5, IsActive: true, StockQty: 2}); err != nil {
		t.Fatal(err)
	}

	reader := &fakeReader{msgs: make(chan kafka.Message, 4), committed: make(chan kafka.Message, 4)}
	consumer := interfaces.NewRestockConsumer(reader, products, catalog, database.NewTransactor(db), database.RetryPolicy{MaxAttempts: 2})
	return consumer, products, catalog, reader
}

func TestHandleRestock(t *testing.T) {
	consumer, products, catalog, _ := setup(t)
	ctx := context.Background()

	if err := consumer.Handle(ctx, kafka.Message{Value: []byte(`{"productId":"lens-1","quantity":4}`)}); err != nil {
		t.Fatalf("product restock: %v", err)
	}
	p, _ := products.Get(ctx, "lens-1")
	if p.StockQty != 5 {
		t.Errorf("product stock = %d, want 5", p.StockQty)
	}

	// 关联条目的库存是投影，随实体商品变化
	lp, _ := catalog.Get(ctx, "lp-linked")
	if lp.StockQty != 5 {
		t.Errorf("linked projection = %d, want 5", lp.StockQty)
	}

	if err := consumer.Handle(ctx, kafka.Message{Value: []byte(`{"loyaltyProductId":"lp-own","quantity":3}`)}); err != nil {
		t.Fatalf("own restock: %v", err)
	}
	lp, _ = catalog.Get(ctx, "lp-own")
	if lp.StockQty != 5 {
		t.Errorf("own stock = %d, want 5", lp.StockQty)
	}
}

func TestHandleRejectsInvalidRestock(t *testing.T) {
	consumer, _, _, _ := setup(t)
	cases := map[string]string{
		"malformed":     `{`,
		"both targets":  `{"productId":"lens-1","loyaltyProductId":"lp-own","quantity":1}`,
		"no target":     `{"quantity":1}`,
		"zero quantity": `{"productId":"lens-1","quantity":0}`,
		"linked target": `{"loyaltyProductId":"lp-linked","quantity":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := consumer.Handle(context.Background(), kafka.Message{Value: []byte(body)})
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestRunCommitsEveryMessage(t *testing.T) {
	consumer, products, _, reader := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader.msgs <- kafka.Message{Offset: 1, Value: []byte(`{"productId":"lens-1","quantity":2}`)}
	reader.msgs <- kafka.Message{Offset: 2, Value: []byte(`not json`)}

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	for want := int64(1); want <= 2; want++ {
		select {
		case m := <-reader.committed:
			if m.Offset != want {
				t.Fatalf("committed offset %d, want %d", m.Offset, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for commit")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}

	p, _ := products.Get(context.Background(), "lens-1")
	if p.StockQty != 3 {
		t.Errorf("stock = %d, want 3", p.StockQty)
	}
}
