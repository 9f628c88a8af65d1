package kvstore

import "codeberg.org/mutker/measprefs/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("kvstore_invalid_db_path")
	ErrInvalidKey    = errors.ErrorCode("kvstore_invalid_key")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("kvstore_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("kvstore_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("kvstore_schema_migration_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrStorageAccess
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed
	ErrStoreClosed   = errors.ErrorCode("kvstore_closed")
)
