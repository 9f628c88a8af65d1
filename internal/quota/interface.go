package quota

import "time"

// NetworkState reports the current network attachment. Traffic on an
// unmetered attachment is never charged and never checked.
type NetworkState interface {
	IsUnmetered() bool
}

// UnmeteredFunc adapts a function to NetworkState.
type UnmeteredFunc func() bool

func (f UnmeteredFunc) IsUnmetered() bool { return f() }

// Metered is a NetworkState that always reports a metered attachment.
var Metered NetworkState = UnmeteredFunc(func() bool { return false })

// State is a value snapshot of the persisted usage accounting.
type State struct {
	UsedBytes  int64
	LastUpdate time.Time // zero when nothing has been charged yet
	CapBytes   int64
	ResetDay   int
}
