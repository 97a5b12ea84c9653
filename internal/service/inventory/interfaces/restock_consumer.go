// internal/service/inventory/interfaces/restock_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/logger"
	"lensmart/internal/pkg/metrics"
	"lensmart/internal/pkg/mq"
	"lensmart/internal/service/inventory/domain"
)

// MessageReader 是 kafka.Reader 中消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Restocker 执行补货，实体商品与未关联的兑换条目各有一条路径
type Restocker interface {
	Increment(ctx context.Context, productID string, qty int) (int, error)
}

type OwnStockRestocker interface {
	IncrementOwnStock(ctx context.Context, loyaltyProductID string, qty int) (int, error)
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RestockConsumer 监听目录系统的补货消息。补货是库存增加的唯一入口。
type RestockConsumer struct {
	reader   MessageReader
	products Restocker
	loyalty  OwnStockRestocker
	tx       Transactor
	retry    database.RetryPolicy
}

func NewRestockConsumer(reader MessageReader, products Restocker, loyalty OwnStockRestocker, tx Transactor, retry database.RetryPolicy) *RestockConsumer {
	return &RestockConsumer{reader: reader, products: products, loyalty: loyalty, tx: tx, retry: retry}
}

// Run 持续消费直到 ctx 取消，可直接作为后台 worker
func (c *RestockConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("restock consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("failed to close restock reader")
		}
	}()
	for {
		// 使用 FetchMessage 而不是 ReadMessage，以便显式提交 offset
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("restock consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch restock message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg)
		if err := c.Handle(msgCtx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Int64("offset", msg.Offset).Msg("restock message dropped")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit restock message")
		}
	}
}

// Handle 解析并执行一条补货指令
func (c *RestockConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var req domain.RestockRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return apperr.Validation("malformed restock message: %v", err)
	}
	if (req.ProductID == "") == (req.LoyaltyProductID == "") {
		return apperr.Validation("restock message must name exactly one of productId and loyaltyProductId")
	}
	if req.Quantity <= 0 {
		return apperr.Validation("restock quantity must be positive, got %d", req.Quantity)
	}

	var stock int
	err := c.retry.Do(ctx, "restock", func(ctx context.Context) error {
		return c.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			if req.ProductID != "" {
				stock, err = c.products.Increment(ctx, req.ProductID, req.Quantity)
			} else {
				stock, err = c.loyalty.IncrementOwnStock(ctx, req.LoyaltyProductID, req.Quantity)
			}
			return err
		})
	})
	metrics.RecordTransition("stock", "restock", err)
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().
		Str("product_id", req.ProductID).
		Str("loyalty_product_id", req.LoyaltyProductID).
		Int("quantity", req.Quantity).
		Int("stock", stock).
		Msg("stock replenished")
	return nil
}
