package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotFound       ErrorCode = 1002
	ErrAlreadyExists  ErrorCode = 1003
	ErrTimeout        ErrorCode = 1005
	ErrCanceled       ErrorCode = 1006
	ErrNotImplemented ErrorCode = 1007

	// 解码错误 (2000-2999)
	ErrMalformedPayload ErrorCode = 2000
	ErrSchemaMismatch   ErrorCode = 2001
	ErrUnknownSelector  ErrorCode = 2002
	ErrInvalidSchema    ErrorCode = 2003

	// 物化错误 (3000-3999)
	ErrCorrelationMiss ErrorCode = 3000
	ErrHandlerMissing  ErrorCode = 3001
	ErrInvariant       ErrorCode = 3002

	// 事件流错误 (4000-4999)
	ErrStreamConnect   ErrorCode = 4000
	ErrStreamReceive   ErrorCode = 4001
	ErrStreamClosed    ErrorCode = 4002
	ErrMessageFormat   ErrorCode = 4003
	ErrReorgDetected   ErrorCode = 4004
	ErrBlockOutOfOrder ErrorCode = 4005

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect  ErrorCode = 5000
	ErrDatabaseQuery    ErrorCode = 5001
	ErrDatabaseInsert   ErrorCode = 5002
	ErrDatabaseUpdate   ErrorCode = 5003
	ErrTransaction      ErrorCode = 5005
	ErrStoreUnavailable ErrorCode = 5007

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:        "未知错误",
	ErrInvalidParam:   "无效的参数",
	ErrNotFound:       "资源未找到",
	ErrAlreadyExists:  "资源已存在",
	ErrTimeout:        "操作超时",
	ErrCanceled:       "操作已取消",
	ErrNotImplemented: "功能未实现",

	// 解码错误
	ErrMalformedPayload: "事件数据格式错误",
	ErrSchemaMismatch:   "事件数据与结构定义不匹配",
	ErrUnknownSelector:  "未知的事件选择器",
	ErrInvalidSchema:    "无效的结构定义",

	// 物化错误
	ErrCorrelationMiss: "未找到关联的发现记录",
	ErrHandlerMissing:  "事件缺少处理器",
	ErrInvariant:       "数据不变量被破坏",

	// 事件流错误
	ErrStreamConnect:   "事件流连接失败",
	ErrStreamReceive:   "事件流接收失败",
	ErrStreamClosed:    "事件流已关闭",
	ErrMessageFormat:   "消息格式错误",
	ErrReorgDetected:   "检测到已确认数据被回滚",
	ErrBlockOutOfOrder: "区块顺序错误",

	// 数据库错误
	ErrDatabaseConnect:  "数据库连接失败",
	ErrDatabaseQuery:    "数据库查询失败",
	ErrDatabaseInsert:   "数据库插入失败",
	ErrDatabaseUpdate:   "数据库更新失败",
	ErrTransaction:      "事务处理失败",
	ErrStoreUnavailable: "存储不可用",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 已经是AppError时保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	// 链中更深处的AppError不修改，只沿用错误码，外层上下文留在Cause里
	var inner *AppError
	if errors.As(err, &inner) {
		code = inner.Code
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误链中是否包含指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/survivor-indexer/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more || len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam:
		return 400
	case e.Code == ErrNotFound:
		return 404
	case e.Code == ErrTimeout:
		return 408
	case e.Code >= 5000 && e.Code <= 5999:
		return 503
	default:
		return 500
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrTimeout,
		ErrStreamConnect,
		ErrStreamReceive,
		ErrDatabaseConnect,
		ErrStoreUnavailable:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误（整个流水线必须停止）
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrReorgDetected,
		ErrBlockOutOfOrder,
		ErrDatabaseConnect,
		ErrStoreUnavailable,
		ErrConfigLoad,
		ErrConfigMissing,
		ErrInvariant:
		return true
	default:
		return false
	}
}

// IsEventLocal 判断错误是否只影响单个事件（跳过该事件后继续处理）
func IsEventLocal(err error) bool {
	switch GetCode(err) {
	case ErrMalformedPayload,
		ErrSchemaMismatch,
		ErrUnknownSelector,
		ErrCorrelationMiss:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
