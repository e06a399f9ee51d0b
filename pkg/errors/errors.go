package errors

import "errors"

// Error 带错误码的错误
type Error struct {
	Code    int    `json:"code"`    // 错误码
	Message string `json:"message"` // 错误信息
	Err     error  `json:"-"`       // 原始错误
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 实现 errors.Unwrap 接口
func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建新的错误
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Clone 克隆错误（避免修改共享的预定义错误）
func (e *Error) Clone() *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
	}
}

// WithError 附加原始错误（返回新实例）
func (e *Error) WithError(err error) *Error {
	c := e.Clone()
	c.Err = err
	return c
}

// WithMessage 替换错误信息（返回新实例）
func (e *Error) WithMessage(message string) *Error {
	c := e.Clone()
	c.Message = message
	return c
}

// Is 当 target 也是 *Error 时按 Code 比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf 取错误链上第一个 *Error 的错误码，没有则返回 0
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// As 同标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is 同标准库 errors.Is
func Is(err error, target error) bool {
	return errors.Is(err, target)
}
