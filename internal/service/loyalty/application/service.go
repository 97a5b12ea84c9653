// internal/service/loyalty/application/service.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/logger"
	"lensmart/internal/service/loyalty/domain"
)

const defaultHistoryLimit = 100

// PointsReader 是积分台账的只读视图
type PointsReader interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	History(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error)
	Audit(ctx context.Context, accountID string) (domain.Audit, error)
}

type CatalogReader interface {
	Get(ctx context.Context, id string) (*domain.LoyaltyProduct, error)
}

type BalanceResponse struct {
	OpticianID string `json:"opticianId"`
	Balance    int64  `json:"balance"`
}

type HistoryResponse struct {
	OpticianID string               `json:"opticianId"`
	Balance    int64                `json:"balance"`
	Entries    []domain.LedgerEntry `json:"entries"`
}

type AuditResponse struct {
	domain.Audit
	InSync bool `json:"consistent"`
}

// LoyaltyApplicationService 提供积分余额、流水与兑换目录的查询
type LoyaltyApplicationService struct {
	points  PointsReader
	catalog CatalogReader
	tracer  trace.Tracer
}

func NewLoyaltyApplicationService(points PointsReader, catalog CatalogReader, tracer trace.Tracer) *LoyaltyApplicationService {
	return &LoyaltyApplicationService{points: points, catalog: catalog, tracer: tracer}
}

// Balance 余额由流水汇总得出
func (s *LoyaltyApplicationService) Balance(ctx context.Context, actor auth.Actor, opticianID string) (*BalanceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetBalance")
	defer span.End()
	span.SetAttributes(attribute.String("optician.id", opticianID))

	if !actor.CanActFor(opticianID) {
		return nil, fail(span, apperr.Forbidden("%s cannot read points of optician %s", actor.UserID, opticianID))
	}
	balance, err := s.points.Balance(ctx, opticianID)
	if err != nil {
		return nil, fail(span, err)
	}
	return &BalanceResponse{OpticianID: opticianID, Balance: balance}, nil
}

func (s *LoyaltyApplicationService) History(ctx context.Context, actor auth.Actor, opticianID string, limit int) (*HistoryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetPointsHistory")
	defer span.End()

	if !actor.CanActFor(opticianID) {
		return nil, fail(span, apperr.Forbidden("%s cannot read points of optician %s", actor.UserID, opticianID))
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	entries, err := s.points.History(ctx, opticianID, limit)
	if err != nil {
		return nil, fail(span, err)
	}
	balance, err := s.points.Balance(ctx, opticianID)
	if err != nil {
		return nil, fail(span, err)
	}
	return &HistoryResponse{OpticianID: opticianID, Balance: balance, Entries: entries}, nil
}

// Audit 对比余额列与流水汇总，不一致时记录错误日志
func (s *LoyaltyApplicationService) Audit(ctx context.Context, actor auth.Actor, opticianID string) (*AuditResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.AuditPoints")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, fail(span, apperr.Forbidden("only admins can audit ledgers"))
	}
	audit, err := s.points.Audit(ctx, opticianID)
	if err != nil {
		return nil, fail(span, err)
	}
	if !audit.Consistent() {
		logger.Ctx(ctx).Error().
			Str("optician_id", opticianID).
			Int64("column_balance", audit.ColumnBalance).
			Int64("ledger_balance", audit.LedgerBalance).
			Msg("points ledger drift detected")
	}
	return &AuditResponse{Audit: audit, InSync: audit.Consistent()}, nil
}

// LoyaltyProduct 返回兑换条目，关联条目的库存来自实体商品
func (s *LoyaltyApplicationService) LoyaltyProduct(ctx context.Context, id string) (*domain.LoyaltyProduct, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetLoyaltyProduct")
	defer span.End()

	lp, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	return lp, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	return err
}
