package errors

/*
	内置错误码，随确认回执下发给客户端
*/

const (
	// CodeRateLimited 触发限流
	CodeRateLimited = "RATE_LIMITED"
	// CodeInvalidInput 载荷校验失败
	CodeInvalidInput = "INVALID_INPUT"
	// CodeForbidden 无权限
	CodeForbidden = "FORBIDDEN"
	// CodeNotFound 目标资源不存在
	CodeNotFound = "NOT_FOUND"
	// CodeMessageTooOld 消息超出可修改时限
	CodeMessageTooOld = "MESSAGE_TOO_OLD"
	// CodeDatabase 存储层不可用或操作失败
	CodeDatabase = "DATABASE_ERROR"
	// CodeInternal 未归类的内部错误
	CodeInternal = "INTERNAL_ERROR"
	// CodeJoinFailed 加入房间失败
	CodeJoinFailed = "JOIN_FAILED"
)

var (
	// ErrRateLimited 触发限流
	ErrRateLimited = New(CodeRateLimited, "too many requests, slow down")
	// ErrInvalidInput 载荷校验失败
	ErrInvalidInput = New(CodeInvalidInput, "invalid payload")
	// ErrForbidden 无权限执行该操作
	ErrForbidden = New(CodeForbidden, "operation not permitted")
	// ErrNotFound 目标资源不存在
	ErrNotFound = New(CodeNotFound, "resource not found")
	// ErrMessageTooOld 消息超出可修改时限
	ErrMessageTooOld = New(CodeMessageTooOld, "message is too old to modify")
	// ErrDatabase 存储层不可用或操作失败
	ErrDatabase = New(CodeDatabase, "storage temporarily unavailable")
	// ErrInternal 未归类的内部错误
	ErrInternal = New(CodeInternal, "internal server error")
	// ErrJoinFailed 加入房间失败
	ErrJoinFailed = New(CodeJoinFailed, "failed to join room")
)
