package logger

// Standard field names for consistent logging.
const (
	FieldService = "service"
	FieldJID     = "jid"
	FieldJobID   = "job_id"
	FieldKind    = "kind"
)
