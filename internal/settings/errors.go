package settings

import "codeberg.org/mutker/measprefs/internal/errors"

const (
	ErrMissingConfig = errors.ErrorCode("settings_missing_config")
	ErrMissingStore  = errors.ErrorCode("settings_missing_store")
	ErrOpenStore     = errors.ErrorCode("settings_open_store_failed")
	ErrSetConfig     = errors.ErrorCode("settings_set_config_failed")
)
