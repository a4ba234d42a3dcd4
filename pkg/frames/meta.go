package frames

// Well-known meta keys.
const (
	MetaSessionID = "session_id"
	MetaTraceID   = "trace_id"
	MetaSource    = "source"
	MetaSpeaker   = "speaker"
	MetaIsFinal   = "is_final"
	MetaReason    = "reason"
	MetaMime      = "mime"
	MetaError     = "error"
)

// System frame names emitted by transports.
const (
	SystemSessionClosed = "session_closed"
	SystemSessionError  = "session_error"
)
