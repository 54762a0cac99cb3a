package log

const (
	// HTTP request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor, also used as gin context keys by the auth middleware
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Chat
	FieldConnID    = "conn_id"
	FieldRoomID    = "room_id"
	FieldMessageID = "message_id"
	FieldEventType = "event_type"
	FieldCount     = "count"

	FieldService = "service"

	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
