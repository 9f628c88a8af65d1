package kvstore

import (
	"path/filepath"

	"codeberg.org/mutker/measprefs/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "measprefs.db"
)

type Config struct {
	DBPath string
	// BackupDir receives a copy of the database before an incompatible
	// schema is replaced. Empty means a "backups" directory next to DBPath.
	BackupDir string
}

func DefaultConfig() Config {
	return Config{
		DBPath: defaultDBPath,
	}
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func validKey(key string) error {
	if key == "" {
		return errors.New().New(ErrInvalidKey)
	}
	return nil
}
