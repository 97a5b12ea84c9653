// internal/service/summary/application/service.go
package application

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shopspring/decimal"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/service/summary/domain"
)

type Queries interface {
	ItemStats(ctx context.Context, opticianID string) ([]domain.ItemStat, error)
	RedemptionStats(ctx context.Context, opticianID string) ([]domain.RedemptionStat, error)
	PointsStats(ctx context.Context, opticianID string) ([]domain.PointsStat, error)
}

// SummaryApplicationService 每次请求都从源数据重新计算统计
type SummaryApplicationService struct {
	queries Queries
	tracer  trace.Tracer
	now     func() time.Time
}

func NewSummaryApplicationService(queries Queries, tracer trace.Tracer) *SummaryApplicationService {
	return &SummaryApplicationService{queries: queries, tracer: tracer, now: func() time.Time { return time.Now().UTC() }}
}

// Summary opticianID 为空时返回全局视图，仅管理员可用；眼镜店只能查看自己
func (s *SummaryApplicationService) Summary(ctx context.Context, actor auth.Actor, opticianID string) (*domain.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "app.Summary")
	defer span.End()
	span.SetAttributes(attribute.String("optician.id", opticianID))

	if opticianID == "" && !actor.IsAdmin() {
		return nil, s.fail(span, apperr.Forbidden("only admins can read the global summary"))
	}
	if opticianID != "" && !actor.CanActFor(opticianID) {
		return nil, s.fail(span, apperr.Forbidden("%s cannot read the summary of optician %s", actor.UserID, opticianID))
	}

	var (
		items       []domain.ItemStat
		redemptions []domain.RedemptionStat
		points      []domain.PointsStat
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		items, err = s.queries.ItemStats(gctx, opticianID)
		return err
	})
	g.Go(func() (err error) {
		redemptions, err = s.queries.RedemptionStats(gctx, opticianID)
		return err
	})
	g.Go(func() (err error) {
		points, err = s.queries.PointsStats(gctx, opticianID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, err)
	}

	return build(s.now(), items, redemptions, points), nil
}

func build(now time.Time, items []domain.ItemStat, redemptions []domain.RedemptionStat, points []domain.PointsStat) *domain.Summary {
	per := map[string]*domain.Figures{}
	figures := func(id string) *domain.Figures {
		f, ok := per[id]
		if !ok {
			f = newFigures()
			per[id] = f
		}
		return f
	}

	for _, row := range items {
		addItems(figures(row.OpticianID), row)
	}
	for _, row := range redemptions {
		addRedemptions(figures(row.OpticianID), row)
	}
	for _, row := range points {
		f := figures(row.OpticianID)
		f.PointsIssued += row.Issued
		f.PointsRedeemed += row.Redeemed
	}

	summary := &domain.Summary{GeneratedAt: now, Global: *newFigures(), ByOptician: make([]domain.OpticianFigures, 0, len(per))}
	for id, f := range per {
		summary.ByOptician = append(summary.ByOptician, domain.OpticianFigures{OpticianID: id, Figures: *f})
		merge(&summary.Global, f)
	}
	sort.Slice(summary.ByOptician, func(i, j int) bool {
		return summary.ByOptician[i].OpticianID < summary.ByOptician[j].OpticianID
	})
	return summary
}

func newFigures() *domain.Figures {
	return &domain.Figures{OrderValue: domain.OrderValue{Confirmed: decimal.Zero, Pending: decimal.Zero}}
}

func addItems(f *domain.Figures, row domain.ItemStat) {
	switch row.Status {
	case "PENDING":
		f.OrderItems.Pending += row.Items
		f.OrderValue.Pending = f.OrderValue.Pending.Add(row.LineValue)
	case "CONFIRMED":
		f.OrderItems.Confirmed += row.Items
		f.OrderValue.Confirmed = f.OrderValue.Confirmed.Add(row.LineValue)
	case "CANCELLED":
		f.OrderItems.Cancelled += row.Items
	}
}

func addRedemptions(f *domain.Figures, row domain.RedemptionStat) {
	switch row.Status {
	case "PENDING":
		f.Redemptions.Pending += row.Total
	case "APPROVED":
		f.Redemptions.Approved += row.Total
	case "REJECTED":
		f.Redemptions.Rejected += row.Total
	case "CANCELLED":
		f.Redemptions.Cancelled += row.Total
	}
}

func merge(dst, src *domain.Figures) {
	dst.OrderItems.Pending += src.OrderItems.Pending
	dst.OrderItems.Confirmed += src.OrderItems.Confirmed
	dst.OrderItems.Cancelled += src.OrderItems.Cancelled
	dst.Redemptions.Pending += src.Redemptions.Pending
	dst.Redemptions.Approved += src.Redemptions.Approved
	dst.Redemptions.Rejected += src.Redemptions.Rejected
	dst.Redemptions.Cancelled += src.Redemptions.Cancelled
	dst.PointsIssued += src.PointsIssued
	dst.PointsRedeemed += src.PointsRedeemed
	dst.OrderValue.Confirmed = dst.OrderValue.Confirmed.Add(src.OrderValue.Confirmed)
	dst.OrderValue.Pending = dst.OrderValue.Pending.Add(src.OrderValue.Pending)
}

func (s *SummaryApplicationService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	return err
}
