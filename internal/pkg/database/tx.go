// internal/pkg/database/tx.go
package database

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"lensmart/internal/pkg/apperr"
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

type txKey struct{}

// Transactor 把 GORM 事务绑定到 context 上，仓储通过 Conn 取得当前事务
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTransaction 在一个数据库事务中执行 fn，fn 返回错误即整体回滚。
// 已处于事务中时直接复用外层事务。
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	return Classify(err)
}

// Conn 返回 context 中的事务，没有则返回普通连接
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Classify 将锁等待超时与死锁转换为可重试的 Conflict，其余错误原样返回
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errLockWaitTimeout || myErr.Number == errDeadlock) {
		return apperr.Conflict(err)
	}
	return err
}
