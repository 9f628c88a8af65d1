package quota

import "codeberg.org/mutker/measprefs/internal/errors"

const (
	ErrInvalidResetDay = errors.ErrorCode("quota_invalid_reset_day")
	ErrInvalidCap      = errors.ErrorCode("quota_invalid_cap")
	ErrMissingStore    = errors.ErrorCode("quota_missing_store")
	ErrPersistUsage    = errors.ErrorCode("quota_persist_usage_failed")
)
