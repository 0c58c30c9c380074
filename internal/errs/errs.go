// Package errs 定义核心操作对外暴露的稳定错误码。
// 请求层只依赖 Code 做状态码映射，Msg 给人看。
package errs

import (
	"errors"
	"fmt"
)

// Code 机器可判定的失败原因。
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeCartNotFound       Code = "CART_NOT_FOUND"
	CodeEmptyCart          Code = "EMPTY_CART"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeTransactionFailure Code = "TRANSACTION_FAILURE"
	CodeConflict           Code = "CONFLICT"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeRateLimited        Code = "RATE_LIMITED"
)

// Error 带错误码的业务错误。ProductID 仅在库存不足时有值。
type Error struct {
	Code      Code
	Msg       string
	ProductID uint
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按错误码比较，使 errors.Is(err, errs.ErrEmptyCart) 对任意同码错误成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrNotFound          = &Error{Code: CodeNotFound, Msg: "not found"}
	ErrCartNotFound      = &Error{Code: CodeCartNotFound, Msg: "cart not found"}
	ErrEmptyCart         = &Error{Code: CodeEmptyCart, Msg: "cart is empty"}
	ErrInsufficientStock = &Error{Code: CodeInsufficientStock, Msg: "insufficient stock"}
	ErrTransaction       = &Error{Code: CodeTransactionFailure, Msg: "transaction failed"}
	ErrConflict          = &Error{Code: CodeConflict, Msg: "conflict"}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument, Msg: "invalid argument"}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized, Msg: "unauthorized"}
)

// NotFound 指明哪类资源不存在，如 "product"、"order"。
func NotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Msg: what + " not found"}
}

func InsufficientStock(productID uint) *Error {
	return &Error{
		Code:      CodeInsufficientStock,
		Msg:       fmt.Sprintf("insufficient stock for product %d", productID),
		ProductID: productID,
	}
}

// Transaction 包装事务内的存储层错误。
func Transaction(err error) *Error {
	return &Error{Code: CodeTransactionFailure, Msg: "transaction failed", Err: err}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Msg: msg}
}

func InvalidArgument(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Msg: msg}
}

// CodeOf 提取错误码；非 *Error 返回空串。
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
