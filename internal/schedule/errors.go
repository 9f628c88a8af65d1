package schedule

import "codeberg.org/mutker/measprefs/internal/errors"

const (
	ErrMissingVersion = errors.ErrorCode("schedule_missing_version")
	ErrNilDescriptor  = errors.ErrorCode("schedule_nil_descriptor")
	ErrApplyPolicy    = errors.ErrorCode("schedule_apply_policy_failed")
	ErrCacheWrite     = errors.ErrorCode("schedule_cache_write_failed")
)
