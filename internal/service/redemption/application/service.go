// internal/service/redemption/application/service.go
package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/logger"
	"lensmart/internal/pkg/metrics"
	"lensmart/internal/service/events"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
	"lensmart/internal/service/redemption/domain"
	"lensmart/internal/service/redemption/domain/port"
)

const idempotencyScope = "redemptions"

type Deps struct {
	Redemptions domain.RedemptionRepository
	Catalog     port.LoyaltyCatalog
	Inventory   port.Inventory
	Points      port.PointsLedger
	Directory   port.Directory
	Tx          port.Transactor
	Retry       database.RetryPolicy
	Events      port.EventPublisher
	Idempotency port.Idempotency // 可为空
	Tracer      trace.Tracer
}

// RedemptionApplicationService 编排兑换单的提交与审批。
// 审批在一个事务内扣减所有条目的库存并一次性扣减积分，任何失败都不留下部分结果。
type RedemptionApplicationService struct {
	Deps
	now func() time.Time
}

func NewRedemptionApplicationService(deps Deps) *RedemptionApplicationService {
	return &RedemptionApplicationService{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// Submit 快照积分价格并创建 PENDING 兑换单。余额检查只作为提示返回，不拒绝提交。
func (s *RedemptionApplicationService) Submit(ctx context.Context, actor auth.Actor, idempotencyKey string, req *SubmitRedemptionRequest) (*SubmitRedemptionResponse, error) {
	ctx, span := s.Tracer.Start(ctx, "app.SubmitRedemption")
	defer span.End()
	span.SetAttributes(attribute.String("optician.id", req.OpticianID), attribute.Int("redemption.lines", len(req.Items)))

	if !actor.CanActFor(req.OpticianID) {
		return nil, s.fail(span, apperr.Forbidden("%s cannot submit redemptions for optician %s", actor.UserID, req.OpticianID))
	}

	useKey := idempotencyKey != "" && s.Idempotency != nil
	if useKey {
		existing, err := s.Idempotency.Claim(ctx, idempotencyScope, idempotencyKey)
		if err != nil {
			return nil, s.fail(span, err)
		}
		if existing != "" {
			red, err := s.Redemptions.FindByID(ctx, existing)
			if err != nil {
				return nil, s.fail(span, err)
			}
			if red.OpticianID != req.OpticianID {
				return nil, s.fail(span, apperr.Validation("idempotency key %s already used for optician %s", idempotencyKey, red.OpticianID))
			}
			span.AddEvent("idempotent replay")
			resp := s.submitResponse(ctx, red)
			resp.Replayed = true
			return resp, nil
		}
	}

	red, err := s.create(ctx, req)
	if err != nil {
		if useKey {
			if relErr := s.Idempotency.Release(ctx, idempotencyScope, idempotencyKey); relErr != nil {
				logger.Ctx(ctx).Warn().Err(relErr).Msg("failed to release idempotency key")
			}
		}
		return nil, s.fail(span, err)
	}
	if useKey {
		if err := s.Idempotency.Complete(ctx, idempotencyScope, idempotencyKey, red.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("redemption_id", red.ID).Msg("failed to record idempotency key")
		}
	}

	resp := s.submitResponse(ctx, red)
	s.publish(ctx, events.New(events.RedemptionSubmitted, red.ID, red.OpticianID, actor.UserID, resp.Redemption))
	logger.Ctx(ctx).Info().
		Str("redemption_id", red.ID).
		Int64("total_points", red.TotalPoints).
		Bool("sufficient_balance", resp.SufficientBalance).
		Msg("redemption submitted")
	return resp, nil
}

func (s *RedemptionApplicationService) create(ctx context.Context, req *SubmitRedemptionRequest) (*domain.Redemption, error) {
	if err := s.requireOptician(ctx, req.OpticianID); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(req.Items))
	lines := make([]domain.Line, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.LoyaltyProductID)
		lines = append(lines, domain.Line{LoyaltyProductID: it.LoyaltyProductID, Quantity: it.Quantity})
	}
	catalog, err := s.Catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	red, err := domain.NewRedemption(req.OpticianID, lines, catalog, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.Redemptions.Create(ctx, red)
	}); err != nil {
		return nil, err
	}
	return red, nil
}

func (s *RedemptionApplicationService) submitResponse(ctx context.Context, red *domain.Redemption) *SubmitRedemptionResponse {
	resp := &SubmitRedemptionResponse{RedemptionID: red.ID, TotalPoints: red.TotalPoints, Redemption: toView(red)}
	balance, err := s.Points.Balance(ctx, red.OpticianID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("optician_id", red.OpticianID).Msg("failed to read balance hint")
		return resp
	}
	resp.Balance = balance
	resp.SufficientBalance = balance >= red.TotalPoints
	return resp
}

// ApplyStatusCommand 分发 {"status":"approve"|"reject"|"cancel"}
func (s *RedemptionApplicationService) ApplyStatusCommand(ctx context.Context, actor auth.Actor, id string, cmd *StatusCommand) (*TransitionResult, error) {
	to, ok := domain.ParseStatusCommand(cmd.Status)
	if !ok {
		return nil, apperr.Validation("unknown status %q, expected approve, reject or cancel", cmd.Status)
	}
	switch to {
	case domain.StatusApproved:
		return s.Approve(ctx, actor, id)
	case domain.StatusRejected:
		return s.Reject(ctx, actor, id)
	default:
		return s.Cancel(ctx, actor, id)
	}
}

// Approve 在一个事务内：PENDING 守卫，逐条扣减库存（关联商品或条目自身库存），
// 最后一次性扣减总积分。任一约束失败整体回滚，兑换单保持 PENDING。
func (s *RedemptionApplicationService) Approve(ctx context.Context, actor auth.Actor, id string) (*TransitionResult, error) {
	ctx, span := s.Tracer.Start(ctx, "app.ApproveRedemption")
	defer span.End()
	span.SetAttributes(attribute.String("redemption.id", id), attribute.String("actor.id", actor.UserID))

	if !actor.IsAdmin() {
		return nil, s.fail(span, apperr.Forbidden("only admins can approve redemptions"))
	}

	start := time.Now()
	var result TransitionResult
	err := s.Retry.Do(ctx, "approve_redemption", func(ctx context.Context) error {
		result = TransitionResult{}
		return s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			red, err := s.loadPending(ctx, id)
			if err != nil {
				return err
			}
			now := s.now()
			if err := s.Redemptions.Resolve(ctx, id, domain.StatusApproved, actor.UserID, now); err != nil {
				return err
			}

			stock, err := s.decrementStock(ctx, red)
			if err != nil {
				return err
			}
			balance, err := s.Points.TryDebit(ctx, red.OpticianID, red.TotalPoints, loyaltydomain.ReasonRedemptionApproved, red.ID)
			if err != nil {
				return err
			}

			red.Status = domain.StatusApproved
			red.ResolvedAt = &now
			red.ResolvedBy = actor.UserID
			result = TransitionResult{Redemption: toView(red), Balance: balance, StockRemaining: stock}
			return nil
		})
	})
	metrics.ObserveTx("approve_redemption", start)
	metrics.RecordTransition("redemption", "approve", err)
	if err != nil {
		s.logGuardFailure(ctx, "approve", id, err)
		return nil, s.fail(span, err)
	}

	s.refreshBalance(ctx, &result)
	s.publish(ctx, events.New(events.RedemptionApproved, id, result.Redemption.OpticianID, actor.UserID, result))
	logger.Ctx(ctx).Info().Str("redemption_id", id).Int64("points_debited", result.Redemption.TotalPoints).Msg("redemption approved")
	return &result, nil
}

// decrementStock 按库存目标排序后扣减，固定加锁顺序以降低死锁概率
func (s *RedemptionApplicationService) decrementStock(ctx context.Context, red *domain.Redemption) (map[string]int, error) {
	ids := make([]string, 0, len(red.Items))
	for _, it := range red.Items {
		ids = append(ids, it.LoyaltyProductID)
	}
	catalog, err := s.Catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	type target struct {
		key  string
		item domain.Item
		lp   *loyaltydomain.LoyaltyProduct
	}
	targets := make([]target, 0, len(red.Items))
	for _, it := range red.Items {
		lp, ok := catalog[it.LoyaltyProductID]
		if !ok {
			return nil, apperr.NotFound("loyalty product", it.LoyaltyProductID)
		}
		key := "loyalty:" + lp.ID
		if lp.Linked() {
			key = "product:" + *lp.ProductID
		}
		targets = append(targets, target{key: key, item: it, lp: lp})
	}
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].key < targets[j].key })

	stock := make(map[string]int, len(targets))
	for _, t := range targets {
		var (
			remaining int
			err       error
		)
		if t.lp.Linked() {
			remaining, err = s.Inventory.TryDecrement(ctx, *t.lp.ProductID, t.item.Quantity)
		} else {
			remaining, err = s.Catalog.TryDecrementOwnStock(ctx, t.lp.ID, t.item.Quantity)
		}
		if err != nil {
			return nil, err
		}
		stock[t.lp.ID] = remaining
	}
	return stock, nil
}

// Reject 由管理员驳回，不产生任何台账变更
func (s *RedemptionApplicationService) Reject(ctx context.Context, actor auth.Actor, id string) (*TransitionResult, error) {
	ctx, span := s.Tracer.Start(ctx, "app.RejectRedemption")
	defer span.End()
	span.SetAttributes(attribute.String("redemption.id", id), attribute.String("actor.id", actor.UserID))

	if !actor.IsAdmin() {
		return nil, s.fail(span, apperr.Forbidden("only admins can reject redemptions"))
	}
	result, err := s.resolveWithoutLedger(ctx, actor, id, domain.StatusRejected, "reject", nil)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.publish(ctx, events.New(events.RedemptionRejected, id, result.Redemption.OpticianID, actor.UserID, result))
	logger.Ctx(ctx).Info().Str("redemption_id", id).Msg("redemption rejected")
	return result, nil
}

// Cancel 由兑换单所属眼镜店或管理员撤回
func (s *RedemptionApplicationService) Cancel(ctx context.Context, actor auth.Actor, id string) (*TransitionResult, error) {
	ctx, span := s.Tracer.Start(ctx, "app.CancelRedemption")
	defer span.End()
	span.SetAttributes(attribute.String("redemption.id", id), attribute.String("actor.id", actor.UserID))

	owner := func(red *domain.Redemption) error {
		if !actor.CanActFor(red.OpticianID) {
			return apperr.Forbidden("%s cannot cancel redemption %s", actor.UserID, id)
		}
		return nil
	}
	result, err := s.resolveWithoutLedger(ctx, actor, id, domain.StatusCancelled, "cancel", owner)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.publish(ctx, events.New(events.RedemptionCancelled, id, result.Redemption.OpticianID, actor.UserID, result))
	logger.Ctx(ctx).Info().Str("redemption_id", id).Msg("redemption cancelled")
	return result, nil
}

func (s *RedemptionApplicationService) resolveWithoutLedger(ctx context.Context, actor auth.Actor, id string, to domain.Status, action string, check func(*domain.Redemption) error) (*TransitionResult, error) {
	start := time.Now()
	var result TransitionResult
	err := s.Retry.Do(ctx, action+"_redemption", func(ctx context.Context) error {
		return s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			red, err := s.Redemptions.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if check != nil {
				if err := check(red); err != nil {
					return err
				}
			}
			if red.Status.Terminal() {
				return apperr.AlreadyResolved("redemption", id, string(red.Status))
			}
			now := s.now()
			if err := s.Redemptions.Resolve(ctx, id, to, actor.UserID, now); err != nil {
				return err
			}
			red.Status = to
			red.ResolvedAt = &now
			red.ResolvedBy = actor.UserID
			result = TransitionResult{Redemption: toView(red)}
			return nil
		})
	})
	metrics.ObserveTx(action+"_redemption", start)
	metrics.RecordTransition("redemption", action, err)
	if err != nil {
		s.logGuardFailure(ctx, action, id, err)
		return nil, err
	}
	s.refreshBalance(ctx, &result)
	return &result, nil
}

func (s *RedemptionApplicationService) Get(ctx context.Context, actor auth.Actor, id string) (*RedemptionView, error) {
	ctx, span := s.Tracer.Start(ctx, "app.GetRedemption")
	defer span.End()

	red, err := s.Redemptions.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if !actor.CanActFor(red.OpticianID) {
		return nil, s.fail(span, apperr.Forbidden("%s cannot read redemption %s", actor.UserID, id))
	}
	return toView(red), nil
}

func (s *RedemptionApplicationService) List(ctx context.Context, actor auth.Actor, opticianID string) ([]*RedemptionView, error) {
	ctx, span := s.Tracer.Start(ctx, "app.ListRedemptions")
	defer span.End()

	if opticianID == "" {
		return nil, s.fail(span, apperr.Validation("opticianId is required"))
	}
	if !actor.CanActFor(opticianID) {
		return nil, s.fail(span, apperr.Forbidden("%s cannot list redemptions of optician %s", actor.UserID, opticianID))
	}
	reds, err := s.Redemptions.ListByOptician(ctx, opticianID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	out := make([]*RedemptionView, 0, len(reds))
	for _, r := range reds {
		out = append(out, toView(r))
	}
	return out, nil
}

func (s *RedemptionApplicationService) loadPending(ctx context.Context, id string) (*domain.Redemption, error) {
	red, err := s.Redemptions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if red.Status.Terminal() {
		return nil, apperr.AlreadyResolved("redemption", id, string(red.Status))
	}
	return red, nil
}

func (s *RedemptionApplicationService) requireOptician(ctx context.Context, opticianID string) error {
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

// refreshBalance 用账本汇总覆盖结果中的余额
func (s *RedemptionApplicationService) refreshBalance(ctx context.Context, result *TransitionResult) {
	balance, err := s.Points.Balance(ctx, result.Redemption.OpticianID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("optician_id", result.Redemption.OpticianID).Msg("failed to refresh balance")
		return
	}
	result.Balance = balance
}

func (s *RedemptionApplicationService) publish(ctx context.Context, e events.Envelope) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(e.Type)).Str("aggregate_id", e.AggregateID).Msg("failed to publish event")
	}
}

func (s *RedemptionApplicationService) logGuardFailure(ctx context.Context, action, id string, err error) {
	switch apperr.CodeOf(err) {
	case apperr.CodeInsufficientStock, apperr.CodeInsufficientPoints, apperr.CodeAlreadyResolved, apperr.CodeNotFound, apperr.CodeUnauthorized:
		logger.Ctx(ctx).Warn().Err(err).Str("action", action).Str("redemption_id", id).Msg("redemption transition rejected")
	default:
		logger.Ctx(ctx).Error().Err(err).Str("action", action).Str("redemption_id", id).Msg("redemption transition failed")
	}
}

func (s *RedemptionApplicationService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	return err
}
