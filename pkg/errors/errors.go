// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind 错误分类，对外序列化为结构化错误对象的 kind 字段
type Kind string

const (
	KindValidation        Kind = "validation"          // 工具参数校验失败，回传给模型重试
	KindRewrite           Kind = "rewrite"             // SIMILARITY 重写失败，回传给模型改写
	KindUnknownTool       Kind = "unknown_tool"        // 工具名未注册
	KindUpstreamTimeout   Kind = "upstream_timeout"    // 模型/数据库/存储超时，可重试一次
	KindIssuerUnavailable Kind = "issuer_unavailable"  // 对象存储不可用，可重试一次
	KindSerialization     Kind = "serialization"       // 行数据无法序列化，不可重试
	KindAlreadyExecuted   Kind = "action_already_executed"
	KindNoPendingAction   Kind = "no_pending_action"
	KindConsentPending    Kind = "consent_pending" // 会话已有待确认动作
	KindRoundLimit        Kind = "round_limit"    // 超过最大工具循环轮数
	KindInternal          Kind = "internal"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// Error 带分类的错误，供 API 层输出 {kind, message}
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	cause   error
}

// New 创建带分类的错误
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf 带格式的 New
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapKind 包装底层错误并标记分类
func WrapKind(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, cause: err}
}

// Error 实现 error
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error { return e.cause }

// MarshalJSON 输出 {kind, message}，不携带内部 cause
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}{e.Kind, e.Message})
}

// KindOf 返回错误的分类；非 *Error 时返回 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind 判断错误是否属于某个分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable 是否属于可（单次）重试的瞬态分类
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindUpstreamTimeout || k == KindIssuerUnavailable
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
