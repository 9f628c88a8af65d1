package kvstore

import (
	"database/sql"
	"slices"

	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS preferences (
	       key         TEXT PRIMARY KEY,
	       kind        TEXT NOT NULL CHECK (kind IN ('bool', 'long', 'string')),
	       value       TEXT NOT NULL,
	       updated_at  INTEGER NOT NULL
	   );`

	upsertPreferenceSQL = `
    INSERT INTO preferences (key, kind, value, updated_at)
    VALUES (?, ?, ?, strftime('%s', 'now'))
    ON CONFLICT(key) DO UPDATE SET
        kind = excluded.kind,
        value = excluded.value,
        updated_at = excluded.updated_at`

	selectPreferenceSQL = `SELECT kind, value FROM preferences WHERE key = ?`
	deletePreferenceSQL = `DELETE FROM preferences WHERE key = ?`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating preference database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

const versionTable = "schema_versions"

// userTables lists the tables in db, skipping sqlite's internal ones.
func userTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, errors.New().Wrap(ErrSchemaValidationFailed, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.New().Wrap(ErrSchemaValidationFailed, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New().Wrap(ErrSchemaValidationFailed, err)
	}
	return tables, nil
}

// GetSchemaVersion returns the highest recorded schema version. A database
// without a version table, or with an empty one, reports 0.
func GetSchemaVersion(db *sql.DB) (int, error) {
	tables, err := userTables(db)
	if err != nil {
		return 0, err
	}
	if !slices.Contains(tables, versionTable) {
		return 0, nil
	}

	var version sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM ` + versionTable).Scan(&version); err != nil {
		return 0, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}
	return int(version.Int64), nil
}
