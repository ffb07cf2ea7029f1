package errors

// Template is a registered error code.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// Error codes.
const (
	CodeConfigRead      = "L001"
	CodeConfigParse     = "L002"
	CodeConfigInvalid   = "L003"
	CodeUnknownStore    = "L010"
	CodeStoreOpen       = "L011"
	CodeListen          = "L020"
	CodeConnect         = "L021"
	CodeUnknownKind     = "L030"
	CodeMissingArgument = "L031"
)

var registry = map[string]Template{
	CodeConfigRead: {
		Category: CategoryConfig,
		Message:  "Cannot read configuration file",
		Detail:   "live.json exists but could not be read.",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "live.json is not valid JSON or has a value of the wrong type.",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range.",
	},
	CodeUnknownStore: {
		Category: CategoryStore,
		Message:  "Unknown snapshot store",
		Detail:   "The store backend must be one of: memory, sqlite, s3.",
	},
	CodeStoreOpen: {
		Category: CategoryStore,
		Message:  "Cannot open snapshot store",
		Detail:   "The snapshot store could not be opened or prepared.",
	},
	CodeListen: {
		Category: CategoryTransport,
		Message:  "Server failed",
		Detail:   "The HTTP server could not listen on the configured address or stopped with an error.",
	},
	CodeConnect: {
		Category: CategoryTransport,
		Message:  "Cannot connect to live endpoint",
		Detail:   "The WebSocket handshake failed and reconnection is disabled.",
	},
	CodeUnknownKind: {
		Category: CategoryCLI,
		Message:  "Unknown component kind",
		Detail:   "Mounted components must name a registered kind.",
	},
	CodeMissingArgument: {
		Category: CategoryCLI,
		Message:  "Missing argument",
		Detail:   "A required flag or argument was not provided.",
	},
}

// Lookup returns the template for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
