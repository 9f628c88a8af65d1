package errors

// Shared error codes. Packages extend these in their own errors.go.
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrReadConfig    ErrorCode = "read_config_failed"
	ErrBindFlags     ErrorCode = "bind_flags_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrInvalidTimezone ErrorCode = "invalid_timezone"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Storage errors
	ErrStorageAccess ErrorCode = "storage_access_failed"

	// Encoding errors
	ErrEncode ErrorCode = "encode_failed"
	ErrDecode ErrorCode = "decode_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read config file",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInvalidTimezone: "Invalid timezone",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrStorageAccess:   "Failed to access preference storage",
	ErrEncode:          "Failed to encode value",
	ErrDecode:          "Failed to decode value",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
