// internal/service/loyalty/infrastructure/gorm_points_ledger.go
package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/service/loyalty/domain"
)

// GormPointsLedger 是积分台账的 GORM 实现。
// 每次变更都在同一事务内同时修改余额列并追加一条流水。
type GormPointsLedger struct {
	db *gorm.DB
}

func NewGormPointsLedger(db *gorm.DB) *GormPointsLedger {
	return &GormPointsLedger{db: db}
}

// Credit 无条件入账，返回入账后的余额列
func (l *GormPointsLedger) Credit(ctx context.Context, accountID string, amount int64, reason domain.Reason, referenceID string) (int64, error) {
	if amount <= 0 {
		return 0, apperr.Validation("credit amount must be positive, got %d", amount)
	}
	db := database.Conn(ctx, l.db)
	if err := l.ensureAccount(db, accountID); err != nil {
		return 0, err
	}
	if err := l.appendEntry(db, accountID, amount, reason, referenceID); err != nil {
		return 0, err
	}
	res := db.Model(&LoyaltyAccountModel{}).
		Where("optician_id = ?", accountID).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, database.Classify(errors.Wrapf(res.Error, "credit account %s", accountID))
	}
	return l.columnBalance(db, accountID)
}

// TryDebit 条件扣减：余额不足时不做任何修改，返回带缺口的 InsufficientPointsError
func (l *GormPointsLedger) TryDebit(ctx context.Context, accountID string, amount int64, reason domain.Reason, referenceID string) (int64, error) {
	if amount <= 0 {
		return 0, apperr.Validation("debit amount must be positive, got %d", amount)
	}
	db := database.Conn(ctx, l.db)
	if err := l.ensureAccount(db, accountID); err != nil {
		return 0, err
	}
	res := db.Model(&LoyaltyAccountModel{}).
		Where("optician_id = ? AND balance >= ?", accountID, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, database.Classify(errors.Wrapf(res.Error, "debit account %s", accountID))
	}

	balance, err := l.columnBalance(db, accountID)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 0 {
		if balance >= amount {
			return 0, apperr.Conflict(errors.Errorf("balance of account %s changed during debit", accountID))
		}
		return 0, &apperr.InsufficientPointsError{AccountID: accountID, Needed: amount, Available: balance}
	}
	if err := l.appendEntry(db, accountID, -amount, reason, referenceID); err != nil {
		return 0, err
	}
	return balance, nil
}

// Balance 由流水汇总得出，不读取余额列
func (l *GormPointsLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := database.Conn(ctx, l.db).Model(&PointsLedgerEntryModel{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("account_id = ?", accountID).
		Scan(&sum).Error
	if err != nil {
		return 0, errors.Wrapf(err, "sum ledger of account %s", accountID)
	}
	return sum, nil
}

// History 按时间倒序返回流水，limit <= 0 表示不限制
func (l *GormPointsLedger) History(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error) {
	q := database.Conn(ctx, l.db).Where("account_id = ?", accountID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []PointsLedgerEntryModel
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list ledger of account %s", accountID)
	}
	out := make([]domain.LedgerEntry, 0, len(models))
	for i := range models {
		out = append(out, toDomainEntry(&models[i]))
	}
	return out, nil
}

// Audit 对比余额列与流水汇总，账户不存在时两者都为 0
func (l *GormPointsLedger) Audit(ctx context.Context, accountID string) (domain.Audit, error) {
	db := database.Conn(ctx, l.db)
	audit := domain.Audit{AccountID: accountID}

	var acc LoyaltyAccountModel
	err := db.Where("optician_id = ?", accountID).Take(&acc).Error
	switch {
	case err == nil:
		audit.ColumnBalance = acc.Balance
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return audit, errors.Wrapf(err, "load account %s", accountID)
	}

	var row struct {
		Total   int64
		Entries int64
	}
	err = db.Model(&PointsLedgerEntryModel{}).
		Select("COALESCE(SUM(delta), 0) AS total, COUNT(*) AS entries").
		Where("account_id = ?", accountID).
		Scan(&row).Error
	if err != nil {
		return audit, errors.Wrapf(err, "aggregate ledger of account %s", accountID)
	}
	audit.LedgerBalance = row.Total
	audit.Entries = row.Entries
	return audit, nil
}

func (l *GormPointsLedger) ensureAccount(db *gorm.DB, accountID string) error {
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LoyaltyAccountModel{OpticianID: accountID, UpdatedAt: time.Now().UTC()}).Error
	if err != nil {
		return database.Classify(errors.Wrapf(err, "ensure account %s", accountID))
	}
	return nil
}

// appendEntry 写入流水；同一 reason:referenceId 重复写入被拒绝
func (l *GormPointsLedger) appendEntry(db *gorm.DB, accountID string, delta int64, reason domain.Reason, referenceID string) error {
	key := domain.IdempotencyKey(reason, referenceID)

	var exists int64
	if err := db.Model(&PointsLedgerEntryModel{}).Where("idempotency_key = ?", key).Count(&exists).Error; err != nil {
		return database.Classify(errors.Wrapf(err, "check ledger key %s", key))
	}
	if exists > 0 {
		return apperr.AlreadyResolved("ledger entry", key, "recorded")
	}

	entry := &PointsLedgerEntryModel{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Delta:          delta,
		Reason:         string(reason),
		ReferenceID:    referenceID,
		IdempotencyKey: key,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.AlreadyResolved("ledger entry", key, "recorded")
		}
		return database.Classify(errors.Wrapf(err, "append ledger entry %s", key))
	}
	return nil
}

func (l *GormPointsLedger) columnBalance(db *gorm.DB, accountID string) (int64, error) {
	var acc LoyaltyAccountModel
	if err := db.Select("balance").Where("optician_id = ?", accountID).Take(&acc).Error; err != nil {
		return 0, database.Classify(errors.Wrapf(err, "read balance of account %s", accountID))
	}
	return acc.Balance, nil
}
