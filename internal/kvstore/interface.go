// Package kvstore is the durable typed preference store every settings
// component reads and writes through.
package kvstore

// Kind is the scalar type a key was last written with.
type Kind string

const (
	KindBool   Kind = "bool"
	KindLong   Kind = "long"
	KindString Kind = "string"
)

// Reader gives explicit optional reads. The second result distinguishes an
// absent key from a present zero value. A key written with a different
// Kind reads as absent.
type Reader interface {
	LookupBool(key string) (bool, bool)
	LookupLong(key string) (int64, bool)
	LookupString(key string) (string, bool)
	Contains(key string) bool
}

// Writer persists single values. Each call is atomic on its own; callers
// needing check-then-act must serialise themselves.
type Writer interface {
	SetBool(key string, value bool) error
	SetLong(key string, value int64) error
	SetString(key string, value string) error
	Remove(key string) error
}

// Store is a durable key-value store of typed scalars.
type Store interface {
	Reader
	Writer
	Close() error
}

// GetBool returns the stored bool or def on a miss.
func GetBool(r Reader, key string, def bool) bool {
	if v, ok := r.LookupBool(key); ok {
		return v
	}
	return def
}

// GetLong returns the stored int64 or def on a miss.
func GetLong(r Reader, key string, def int64) int64 {
	if v, ok := r.LookupLong(key); ok {
		return v
	}
	return def
}

// GetString returns the stored string or def on a miss.
func GetString(r Reader, key string, def string) string {
	if v, ok := r.LookupString(key); ok {
		return v
	}
	return def
}
