package kvstore

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type sqliteStore struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
	closed bool
}

// Open opens (creating if needed) the sqlite-backed preference store.
func Open(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// WAL plus full sync: every preference write must survive process death.
	dsn := cfg.DBPath + "?_journal=WAL&_sync=FULL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Preference store opened")

	return &sqliteStore{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (s *sqliteStore) lookup(key string, want Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn().Str("key", key).Msg("Read from closed preference store")
		return "", false
	}

	var kind, value string
	err := s.db.QueryRow(selectPreferenceSQL, key).Scan(&kind, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.logger.ErrorWithCode(errors.New().Wrap(ErrStorageAccess, err)).
			Str("key", key).
			Msg("Failed to read preference")
		return "", false
	}
	if Kind(kind) != want {
		s.logger.Debug().
			Str("key", key).
			Str("stored_kind", kind).
			Str("wanted_kind", string(want)).
			Msg("Preference kind mismatch, treating as absent")
		return "", false
	}
	return value, true
}

func (s *sqliteStore) store(key string, kind Kind, value string) error {
	errFactory := errors.New()

	if err := validKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errFactory.New(ErrStoreClosed)
	}

	if _, err := s.db.Exec(upsertPreferenceSQL, key, string(kind), value); err != nil {
		return errFactory.WithData(ErrStorageAccess, struct {
			Key   string
			Error string
		}{
			Key:   key,
			Error: err.Error(),
		})
	}
	return nil
}

func (s *sqliteStore) LookupBool(key string) (bool, bool) {
	raw, ok := s.lookup(key, KindBool)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warn().Str("key", key).Str("value", raw).Msg("Corrupt bool preference")
		return false, false
	}
	return v, true
}

func (s *sqliteStore) LookupLong(key string) (int64, bool) {
	raw, ok := s.lookup(key, KindLong)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn().Str("key", key).Str("value", raw).Msg("Corrupt long preference")
		return 0, false
	}
	return v, true
}

func (s *sqliteStore) LookupString(key string) (string, bool) {
	return s.lookup(key, KindString)
}

func (s *sqliteStore) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM preferences WHERE key = ?)`, key).Scan(&exists)
	if err != nil {
		s.logger.ErrorWithCode(errors.New().Wrap(ErrStorageAccess, err)).
			Str("key", key).
			Msg("Failed to check preference")
		return false
	}
	return exists
}

func (s *sqliteStore) SetBool(key string, value bool) error {
	return s.store(key, KindBool, strconv.FormatBool(value))
}

func (s *sqliteStore) SetLong(key string, value int64) error {
	return s.store(key, KindLong, strconv.FormatInt(value, 10))
}

func (s *sqliteStore) SetString(key string, value string) error {
	return s.store(key, KindString, value)
}

func (s *sqliteStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New().New(ErrStoreClosed)
	}

	if _, err := s.db.Exec(deletePreferenceSQL, key); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Checkpoint WAL and cleanup on close
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := s.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("Preference store closed")

	return nil
}
