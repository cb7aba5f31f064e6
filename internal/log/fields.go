package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldKey       = "key"
	FieldBytes     = "bytes"
	FieldTimestamp = "timestamp"
	FieldTopic     = "topic"
	FieldMonth     = "month"
	FieldOrderID   = "order_id"
	FieldClient    = "client"
	FieldExpenseID = "expense_id"
	FieldItemID    = "item_id"
	FieldStatus    = "status"
	FieldUsage     = "usage_ratio"
	FieldVersion   = "version"
	FieldTable     = "table"
	FieldFile      = "file"
	FieldDuration  = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentStore     = "store"
	ComponentBackup    = "backup"
	ComponentStorage   = "storage"
	ComponentState     = "state"
	ComponentEvents    = "events"
	ComponentHistory   = "history"
	ComponentOrders    = "orders"
	ComponentClients   = "clients"
	ComponentExpenses  = "expenses"
	ComponentInventory = "inventory"
	ComponentSettings  = "settings"
	ComponentReports   = "reports"
	ComponentEnvelope  = "envelope"
	ComponentHealth    = "health"
	ComponentRemote    = "remote"
	ComponentAMQP      = "amqp"
	ComponentFileIO    = "fileio"
	ComponentBackend   = "backend"
	ComponentHTTP      = "http"
)

// Operations defines standard operation names
const (
	OpCreate  = "create"
	OpRead    = "read"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpSave    = "save"
	OpLoad    = "load"
	OpRestore = "restore"
	OpImport  = "import"
	OpExport  = "export"
	OpCleanup = "cleanup"
	OpSync    = "sync"
	OpUndo    = "undo"
	OpRedo    = "redo"
	OpTick    = "tick"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithKey adds the storage key and payload size
func (f LogFields) WithKey(key string, bytes int) LogFields {
	f[FieldKey] = key
	f[FieldBytes] = bytes
	return f
}

// WithMonth adds the month partition
func (f LogFields) WithMonth(month string) LogFields {
	f[FieldMonth] = month
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
