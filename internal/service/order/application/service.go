// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopspring/decimal"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/logger"
	"lensmart/internal/pkg/metrics"
	"lensmart/internal/service/events"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
	"lensmart/internal/service/loyalty/policy"
	"lensmart/internal/service/order/domain"
	"lensmart/internal/service/order/domain/port"
)

const idempotencyScope = "orders"

// Deps 汇总订单应用服务的依赖
type Deps struct {
	Orders      domain.OrderRepository
	Inventory   port.Inventory
	Points      port.PointsLedger
	Accrual     port.AccrualPolicy
	Directory   port.Directory
	Tx          port.Transactor
	Retry       database.RetryPolicy
	Events      port.EventPublisher
	Idempotency port.Idempotency // 可为空
	Tracer      trace.Tracer
}

// OrderApplicationService 编排订单提交与订单行确认。
// 确认流程在一个事务内依次完成状态守卫、库存扣减与积分入账。
type OrderApplicationService struct {
	Deps
	now func() time.Time
}

func NewOrderApplicationService(deps Deps) *OrderApplicationService {
	return &OrderApplicationService{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// SubmitOrder 以当前价格快照创建订单，所有订单行为 PENDING，不触碰库存
func (s *OrderApplicationService) SubmitOrder(ctx context.Context, actor auth.Actor, idempotencyKey string, req *SubmitOrderRequest) (*SubmitOrderResponse, error) {
	ctx, span := s.Tracer.Start(ctx, "app.SubmitOrder")
	defer span.End()
	span.SetAttributes(attribute.String("optician.id", req.OpticianID), attribute.Int("order.lines", len(req.Items)))

	if !actor.CanActFor(req.OpticianID) {
		return nil, s.fail(span, apperr.Forbidden("%s cannot submit orders for optician %s", actor.UserID, req.OpticianID))
	}

	if idempotencyKey != "" && s.Idempotency != nil {
		existing, err := s.Idempotency.Claim(ctx, idempotencyScope, idempotencyKey)
		if err != nil {
			return nil, s.fail(span, err)
		}
		if existing != "" {
			order, err := s.Orders.FindByID(ctx, existing)
			if err != nil {
				return nil, s.fail(span, err)
			}
			if order.OpticianID != req.OpticianID {
				return nil, s.fail(span, apperr.Validation("idempotency key %s already used for optician %s", idempotencyKey, order.OpticianID))
			}
			span.AddEvent("idempotent replay")
			return &SubmitOrderResponse{OrderID: order.ID, Order: toOrderView(order), Replayed: true}, nil
		}
	}

	order, err := s.createOrder(ctx, req)
	if err != nil {
		if idempotencyKey != "" && s.Idempotency != nil {
			if relErr := s.Idempotency.Release(ctx, idempotencyScope, idempotencyKey); relErr != nil {
				logger.Ctx(ctx).Warn().Err(relErr).Msg("failed to release idempotency key")
			}
		}
		return nil, s.fail(span, err)
	}
	if idempotencyKey != "" && s.Idempotency != nil {
		if err := s.Idempotency.Complete(ctx, idempotencyScope, idempotencyKey, order.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("failed to record idempotency key")
		}
	}

	s.publish(ctx, events.New(events.OrderSubmitted, order.ID, order.OpticianID, actor.UserID, toOrderView(order)))
	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("optician_id", order.OpticianID).Int("items", len(order.Items)).Msg("order submitted")
	return &SubmitOrderResponse{OrderID: order.ID, Order: toOrderView(order)}, nil
}

func (s *OrderApplicationService) createOrder(ctx context.Context, req *SubmitOrderRequest) (*domain.Order, error) {
	if err := s.requireOptician(ctx, req.OpticianID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	lines := make([]domain.Line, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
		lines = append(lines, domain.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	products, err := s.Inventory.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal, len(products))
	for id, p := range products {
		prices[id] = p.Price
	}

	order, err := domain.NewOrder(req.OpticianID, lines, prices, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.Orders.Create(ctx, order)
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// ApplyItemAction 分发带标签的订单行操作
func (s *OrderApplicationService) ApplyItemAction(ctx context.Context, actor auth.Actor, itemID string, cmd *ItemCommand) (*ItemResult, error) {
	action, ok := domain.ParseItemAction(cmd.Action)
	if !ok {
		return nil, apperr.Validation("unknown action %q, expected confirm or cancel", cmd.Action)
	}
	if action == domain.ActionConfirm {
		return s.ConfirmItem(ctx, actor, itemID)
	}
	return s.CancelItem(ctx, actor, itemID)
}

// ConfirmItem 确认一个订单行：
// PENDING 守卫，库存条件扣减，按确认时的奖励积分入账，任一步失败整体回滚。
// 锁等待超时或死锁时整体重试，每次重试重新检查守卫。
func (s *OrderApplicationService) ConfirmItem(ctx context.Context, actor auth.Actor, itemID string) (*ItemResult, error) {
	ctx, span := s.Tracer.Start(ctx, "app.ConfirmItem")
	defer span.End()
	span.SetAttributes(attribute.String("order_item.id", itemID), attribute.String("actor.id", actor.UserID))

	if !actor.IsAdmin() {
		return nil, s.fail(span, apperr.Forbidden("only admins can confirm order items"))
	}

	start := time.Now()
	var (
		result  ItemResult
		opticID string
	)
	err := s.Retry.Do(ctx, "confirm_item", func(ctx context.Context) error {
		result = ItemResult{}
		return s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			item, order, err := s.loadItem(ctx, itemID)
			if err != nil {
				return err
			}
			opticID = order.OpticianID

			now := s.now()
			if err := s.Orders.ResolveItem(ctx, itemID, domain.ItemConfirmed, actor.UserID, now); err != nil {
				return err
			}
			remaining, err := s.Inventory.TryDecrement(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			product, err := s.Inventory.Get(ctx, item.ProductID)
			if err != nil {
				return err
			}

			if product.LoyaltyPointsReward > 0 {
				eligible, err := s.eligible(ctx, order.OpticianID, item, product.LoyaltyPointsReward)
				if err != nil {
					return err
				}
				if eligible {
					amount, err := item.RewardPoints(product.LoyaltyPointsReward)
					if err != nil {
						return err
					}
					if _, err := s.Points.Credit(ctx, order.OpticianID, amount, loyaltydomain.ReasonOrderItemConfirmed, item.ID); err != nil {
						return err
					}
					result.PointsCredited = amount
				}
			}

			item.Status = domain.ItemConfirmed
			item.ResolvedAt = &now
			item.ResolvedBy = actor.UserID
			result.Item = toItemView(item)
			result.StockRemaining = &remaining
			return nil
		})
	})
	metrics.ObserveTx("confirm_item", start)
	metrics.RecordTransition("order_item", "confirm", err)
	if err != nil {
		s.logGuardFailure(ctx, "confirm", itemID, err)
		return nil, s.fail(span, err)
	}

	s.refresh(ctx, &result, opticID)
	s.publish(ctx, events.New(events.OrderItemConfirmed, result.Item.OrderID, opticID, actor.UserID, result))
	logger.Ctx(ctx).Info().
		Str("order_item_id", itemID).
		Int64("points_credited", result.PointsCredited).
		Msg("order item confirmed")
	return &result, nil
}

// CancelItem 取消一个订单行，不归还库存，也不影响积分
func (s *OrderApplicationService) CancelItem(ctx context.Context, actor auth.Actor, itemID string) (*ItemResult, error) {
	ctx, span := s.Tracer.Start(ctx, "app.CancelItem")
	defer span.End()
	span.SetAttributes(attribute.String("order_item.id", itemID), attribute.String("actor.id", actor.UserID))

	if !actor.IsAdmin() {
		return nil, s.fail(span, apperr.Forbidden("only admins can cancel order items"))
	}

	start := time.Now()
	var (
		result  ItemResult
		opticID string
	)
	err := s.Retry.Do(ctx, "cancel_item", func(ctx context.Context) error {
		return s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			item, order, err := s.loadItem(ctx, itemID)
			if err != nil {
				return err
			}
			opticID = order.OpticianID
			now := s.now()
			if err := s.Orders.ResolveItem(ctx, itemID, domain.ItemCancelled, actor.UserID, now); err != nil {
				return err
			}
			item.Status = domain.ItemCancelled
			item.ResolvedAt = &now
			item.ResolvedBy = actor.UserID
			result = ItemResult{Item: toItemView(item)}
			return nil
		})
	})
	metrics.ObserveTx("cancel_item", start)
	metrics.RecordTransition("order_item", "cancel", err)
	if err != nil {
		s.logGuardFailure(ctx, "cancel", itemID, err)
		return nil, s.fail(span, err)
	}

	s.refresh(ctx, &result, opticID)
	s.publish(ctx, events.New(events.OrderItemCancelled, result.Item.OrderID, opticID, actor.UserID, result))
	logger.Ctx(ctx).Info().Str("order_item_id", itemID).Msg("order item cancelled")
	return &result, nil
}

// GetOrder 返回订单及其推导出的聚合状态
func (s *OrderApplicationService) GetOrder(ctx context.Context, actor auth.Actor, orderID string) (*OrderView, error) {
	ctx, span := s.Tracer.Start(ctx, "app.GetOrder")
	defer span.End()

	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if !actor.CanActFor(order.OpticianID) {
		return nil, s.fail(span, apperr.Forbidden("%s cannot read order %s", actor.UserID, orderID))
	}
	return toOrderView(order), nil
}

func (s *OrderApplicationService) ListOrders(ctx context.Context, actor auth.Actor, opticianID string) ([]*OrderView, error) {
	ctx, span := s.Tracer.Start(ctx, "app.ListOrders")
	defer span.End()

	if opticianID == "" {
		return nil, s.fail(span, apperr.Validation("opticianId is required"))
	}
	if !actor.CanActFor(opticianID) {
		return nil, s.fail(span, apperr.Forbidden("%s cannot list orders of optician %s", actor.UserID, opticianID))
	}
	orders, err := s.Orders.ListByOptician(ctx, opticianID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	out := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderView(o))
	}
	return out, nil
}

func (s *OrderApplicationService) loadItem(ctx context.Context, itemID string) (*domain.OrderItem, *domain.Order, error) {
	item, err := s.Orders.FindItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item.Status.Terminal() {
		return nil, nil, apperr.AlreadyResolved("order item", itemID, string(item.Status))
	}
	order, err := s.Orders.FindByID(ctx, item.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return item, order, nil
}

// eligible 以眼镜店的当前角色求值积分规则，目录中不存在时角色为空
func (s *OrderApplicationService) eligible(ctx context.Context, opticianID string, item *domain.OrderItem, reward int) (bool, error) {
	fact := policy.AccrualFact{
		OpticianID: opticianID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		Reward:     reward,
	}
	user, err := s.Directory.Lookup(ctx, opticianID)
	switch {
	case err == nil:
		fact.Role = string(user.Role)
	case !errors.Is(err, apperr.ErrNotFound):
		return false, err
	}
	return s.Accrual.Eligible(ctx, fact)
}

func (s *OrderApplicationService) requireOptician(ctx context.Context, opticianID string) error {
	if opticianID == "" {
		return apperr.Validation("opticianId is required")
	}
	user, err := s.Directory.Lookup(ctx, opticianID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation("optician %s is not registered", opticianID)
	}
	if err != nil {
		return err
	}
	if user.Role != auth.RoleOptician {
		return apperr.Validation("user %s is not an optician", opticianID)
	}
	return nil
}

// refresh 在提交后补充订单聚合状态与账本余额，读失败只记录日志
func (s *OrderApplicationService) refresh(ctx context.Context, result *ItemResult, opticianID string) {
	if order, err := s.Orders.FindByID(ctx, result.Item.OrderID); err == nil {
		result.OrderStatus = order.Status()
	} else {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", result.Item.OrderID).Msg("failed to refresh order status")
	}
	if balance, err := s.Points.Balance(ctx, opticianID); err == nil {
		result.Balance = balance
	} else {
		logger.Ctx(ctx).Warn().Err(err).Str("optician_id", opticianID).Msg("failed to refresh balance")
	}
}

func (s *OrderApplicationService) publish(ctx context.Context, e events.Envelope) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(e.Type)).Str("aggregate_id", e.AggregateID).Msg("failed to publish event")
	}
}

func (s *OrderApplicationService) logGuardFailure(ctx context.Context, action, itemID string, err error) {
	switch apperr.CodeOf(err) {
	case apperr.CodeInsufficientStock, apperr.CodeAlreadyResolved, apperr.CodeNotFound, apperr.CodeUnauthorized:
		logger.Ctx(ctx).Warn().Err(err).Str("action", action).Str("order_item_id", itemID).Msg("order item transition rejected")
	default:
		logger.Ctx(ctx).Error().Err(err).Str("action", action).Str("order_item_id", itemID).Msg("order item transition failed")
	}
}

func (s *OrderApplicationService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	return err
}
