package httptransport

// 面向客户端的错误消息。内部错误细节只进程日志可见，
// 永远不出现在响应里。
const (
	MsgFieldsRequired   = "Alias and redirect address required"
	MsgInvalidEmail     = "Invalid email format"
	MsgMissingJSON      = "Missing JSON data"
	MsgInvalidConfig    = "Invalid configuration"
	MsgInternalError    = "Internal server error"
	MsgAliasExists      = "This alias already exists"
	MsgInvalidPassword  = "Invalid password"
	MsgSolutionRequired = "Altcha verification required"
	MsgAltchaDisabled   = "Altcha verification is not enabled"
	MsgAuthSuccess      = "Authentication successful"
)
