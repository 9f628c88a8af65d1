package kvstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/logger"
)

func backupDatabase(db *sql.DB, dir string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  dir,
			Error: err.Error(),
		})
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(dir, fmt.Sprintf("preferences_v%d_%s.db", version, timestamp))

	// VACUUM INTO requires no active transaction
	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Preference database backup created")

	return backupPath, nil
}

// ValidateAndUpdateSchema initialises a fresh database and replaces
// anything else: a schema of another version, or tables with no version
// record at all. Existing data is backed up before it is dropped.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	if version == SchemaVersion {
		log.Debug().Int("version", version).Msg("Schema version is current")
		return nil
	}

	tables, err := userTables(db)
	if err != nil {
		return err
	}

	log.Debug().
		Int("version", version).
		Strs("tables", tables).
		Msg("Preference schema needs initialising")

	if len(tables) > 0 {
		backupPath, err := backupDatabase(db, backupDir, version, log)
		if err != nil {
			return err
		}
		log.Warn().
			Int("found", version).
			Int("expected", SchemaVersion).
			Str("backup", backupPath).
			Msg("Incompatible preference schema replaced")

		if err := dropTables(db, tables, log); err != nil {
			return err
		}
	}
	return InitSchema(db, log)
}

// dropTables removes tables in one transaction.
func dropTables(db *sql.DB, tables []string, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Debug().Err(err).Msg("Failed to rollback schema replacement")
		}
	}()

	for _, table := range tables {
		// Names come from sqlite_master, so quoting is the only escaping needed.
		stmt := `DROP TABLE IF EXISTS "` + strings.ReplaceAll(table, `"`, `""`) + `"`
		if _, err := tx.Exec(stmt); err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "drop_table",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}
	return nil
}
