package log

import "sort"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldPartial     = "partial"
	FieldCollections = "collections"
	FieldKind        = "kind"
	FieldRowID       = "id"
	FieldReference   = "reference"
	FieldTarget      = "target"
	FieldQueue       = "queue"
	FieldExchange    = "exchange"
	FieldAttempt     = "attempt"
	FieldRetryIn     = "retry_in"
	FieldReason      = "reason"
)

// Components
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
)

// Operations
const (
	OpLoadConfig = "load_config"
	OpSaveConfig = "save_config"
	OpMerge      = "merge_categories"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)

// Fields is a builder for structured log attributes.
type Fields map[string]any

func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithComponent(component string) Fields {
	f[FieldComponent] = component
	return f
}

func (f Fields) WithRequestID(requestID string) Fields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

func (f Fields) WithClientIP(ip string) Fields {
	f[FieldClientIP] = ip
	return f
}

// WithError is a no-op for nil errors.
func (f Fields) WithError(err error) Fields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f Fields) WithOperation(op string) Fields {
	f[FieldOperation] = op
	return f
}

func (f Fields) WithUserID(userID int64) Fields {
	f[FieldUserID] = userID
	return f
}

// WithSave records the shape of a submitted configuration.
func (f Fields) WithSave(partial bool, collections []string) Fields {
	f[FieldPartial] = partial
	f[FieldCollections] = collections
	return f
}

func (f Fields) WithHTTPRequest(method, path string) Fields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

func (f Fields) WithHTTPResponse(statusCode int, durationMs int64) Fields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice flattens the fields into slog key/value pairs, sorted by key.
func (f Fields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}
