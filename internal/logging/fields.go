package logging

// Field name constants for structured logging.
const (
	FieldError = "error"
	FieldPath  = "path"

	// Grammar fields.
	FieldGrammar = "grammar"
	FieldRule    = "rule"
	FieldPattern = "pattern"
	FieldInclude = "include"

	// Document fields.
	FieldOffset      = "offset"
	FieldRemoved     = "removed"
	FieldInserted    = "inserted"
	FieldAffected    = "affected"
	FieldRetokenized = "retokenized"
	FieldEvicted     = "evicted"
	FieldLines       = "lines"
)
