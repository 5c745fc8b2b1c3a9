package logger

// Standard field names for consistent structured logging across tally.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID    = "job_id"
	FieldAgentnum = "agentnum"
	FieldLocation = "locationnum"

	// Components
	FieldHandler = "handler"

	// Operations
	FieldOperation = "operation"
	FieldConfKey   = "conf_key"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"
	FieldTotal = "total"
)
