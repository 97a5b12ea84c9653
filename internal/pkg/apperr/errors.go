// internal/pkg/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
)

// Code 是返回给调用方的机器可读错误码
type Code string

const (
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeInsufficientPoints Code = "INSUFFICIENT_POINTS"
	CodeAlreadyResolved    Code = "ALREADY_RESOLVED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeConflict           Code = "CONFLICT"
	CodeRetryExhausted     Code = "RETRY_EXHAUSTED"
	CodeInternal           Code = "INTERNAL"
)

// Error 是带错误码的哨兵错误，业务层通过 errors.Is 判断
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInsufficientStock  = &Error{Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrInsufficientPoints = &Error{Code: CodeInsufficientPoints, Message: "insufficient points"}
	ErrAlreadyResolved    = &Error{Code: CodeAlreadyResolved, Message: "already resolved"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "conflict, retry later"}
	ErrRetryExhausted     = &Error{Code: CodeRetryExhausted, Message: "retry attempts exhausted"}
)

// InsufficientStockError 携带服务端计算出的准确缺口
type InsufficientStockError struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Shortfall 返回还差多少件
func (e *InsufficientStockError) Shortfall() int { return e.Requested - e.Available }

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InsufficientPointsError 携带积分缺口
type InsufficientPointsError struct {
	AccountID string `json:"accountId"`
	Needed    int64  `json:"needed"`
	Available int64  `json:"available"`
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for %s: needed %d, available %d", e.AccountID, e.Needed, e.Available)
}

func (e *InsufficientPointsError) Shortfall() int64 { return e.Needed - e.Available }

func (e *InsufficientPointsError) Is(target error) bool { return target == ErrInsufficientPoints }

// detailed 是带上下文描述的包装，保留底层哨兵用于 errors.Is
type detailed struct {
	base *Error
	msg  string
}

func (d *detailed) Error() string { return d.msg }
func (d *detailed) Unwrap() error { return d.base }

// Validation 返回一个校验错误
func Validation(format string, args ...any) error {
	return &detailed{base: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound 返回一个资源不存在错误
func NotFound(kind, id string) error {
	return &detailed{base: ErrNotFound, msg: fmt.Sprintf("%s %s not found", kind, id)}
}

// AlreadyResolved 表示对非 PENDING 对象的重复操作
func AlreadyResolved(kind, id, status string) error {
	return &detailed{base: ErrAlreadyResolved, msg: fmt.Sprintf("%s %s is already %s", kind, id, status)}
}

// Unauthorized 表示角色或归属校验失败
func Unauthorized(format string, args ...any) error {
	return &detailed{base: ErrUnauthorized, msg: fmt.Sprintf(format, args...)}
}

// Conflict 包装一个可重试的锁竞争错误
func Conflict(cause error) error {
	return &detailed{base: ErrConflict, msg: "lock contention: " + cause.Error()}
}

// CodeOf 解析错误链上的错误码，未知错误归为 INTERNAL
func CodeOf(err error) Code {
	var e *Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, ErrInsufficientPoints):
		return CodeInsufficientPoints
	case errors.As(err, &e):
		return e.Code
	default:
		return CodeInternal
	}
}

// RetryExhausted 表示可重试的冲突在有限次数内仍未成功
func RetryExhausted(operation string, attempts int) error {
	return &detailed{base: ErrRetryExhausted, msg: fmt.Sprintf("%s: still conflicting after %d attempts", operation, attempts)}
}

// ErrForbidden 与 ErrUnauthorized 共用错误码：身份有效但无权操作目标资源
var ErrForbidden = &Error{Code: CodeUnauthorized, Message: "forbidden"}

func Forbidden(format string, args ...any) error {
	return &detailed{base: ErrForbidden, msg: fmt.Sprintf(format, args...)}
}
