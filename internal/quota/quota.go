// Package quota accounts metered data usage against a monthly cap.
package quota

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/measprefs/internal/calendar"
	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/kvstore"
	"codeberg.org/mutker/measprefs/internal/logger"
	"github.com/spf13/cast"
)

const (
	// Unlimited is the cap when neither the user nor the schedule sets one.
	Unlimited int64 = math.MaxInt64

	DefaultResetDay = 1

	bytesPerMB = 1024 * 1024
)

// Tracker owns used-bytes accounting for the current billing period.
// Reconcile, compare and write happen under one lock, so concurrent
// charges and checks through the same Tracker cannot interleave.
type Tracker struct {
	store kvstore.Store
	cal   *calendar.Source
	net   NetworkState
	log   logger.Logger

	mu sync.Mutex
}

// NewTracker builds a Tracker. A nil net means always metered and a nil
// cal uses the real clock in time.Local.
func NewTracker(store kvstore.Store, cal *calendar.Source, net NetworkState, log logger.Logger) (*Tracker, error) {
	if store == nil {
		return nil, errors.New().New(ErrMissingStore)
	}
	if cal == nil {
		cal = calendar.NewSource(nil, nil)
	}
	if net == nil {
		net = Metered
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{store: store, cal: cal, net: net, log: log}, nil
}

// ChargeBytes adds n bytes to this period's usage. It is a no-op on an
// unmetered attachment. Persistence failures are logged, not returned.
func (t *Tracker) ChargeBytes(n int64) {
	if t.net.IsUnmetered() {
		return
	}
	if n < 0 {
		t.log.Warn().Int64("bytes", n).Msg("Ignoring negative charge")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.cal.Now()
	t.reconcileLocked(now)

	used := kvstore.GetLong(t.store, kvstore.KeyUsedBytes, 0)
	if n > Unlimited-used {
		used = Unlimited
	} else {
		used += n
	}

	t.persist(kvstore.KeyUsedBytes, used)
	t.persist(kvstore.KeyUsedBytesLastTime, now.UnixMilli())

	t.log.Debug().
		Int64("used_bytes", used).
		Time("at", now).
		Msg("Saved used bytes")
}

// IsCapReached reports whether using prospective more bytes would reach
// the cap. Landing exactly on the cap counts as reached. Always false on
// an unmetered attachment.
func (t *Tracker) IsCapReached(prospective int64) bool {
	if t.net.IsUnmetered() {
		return false
	}
	if prospective < 0 {
		prospective = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.reconcileLocked(t.cal.Now())

	used := kvstore.GetLong(t.store, kvstore.KeyUsedBytes, 0)
	capBytes := t.ResolveCapBytes()

	t.log.Debug().
		Int64("used_bytes", used).
		Int64("cap_bytes", capBytes).
		Int64("prospective_bytes", prospective).
		Msg("Checking data cap")

	// used + prospective >= cap, without overflowing near Unlimited.
	return prospective >= capBytes-used
}

// Reached is IsCapReached(0).
func (t *Tracker) Reached() bool {
	return t.IsCapReached(0)
}

// ResolveCapBytes returns the cap in bytes: a positive user preference in
// MB wins, then a positive administrator cap in MB, else Unlimited.
func (t *Tracker) ResolveCapBytes() int64 {
	if mb, ok := t.userCapMB(); ok && mb > 0 {
		return mbToBytes(mb)
	}
	if mb := kvstore.GetLong(t.store, kvstore.KeyDataCap, -1); mb > 0 {
		return mbToBytes(mb)
	}
	return Unlimited
}

// userCapMB reads the user override. Preference screens store it as
// decimal text; a leading zero does not make it octal.
func (t *Tracker) userCapMB() (int64, bool) {
	if raw, ok := t.store.LookupString(kvstore.KeyUserDataCap); ok {
		mb, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			t.log.Warn().Str("value", raw).Msg("Ignoring malformed user data cap")
			return 0, false
		}
		return mb, true
	}
	return t.store.LookupLong(kvstore.KeyUserDataCap)
}

// ResetUsage zeroes this period's usage. The last update time is kept.
func (t *Tracker) ResetUsage() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.persist(kvstore.KeyUsedBytes, 0)
}

// UsedBytes returns the persisted usage without reconciling.
func (t *Tracker) UsedBytes() int64 {
	return kvstore.GetLong(t.store, kvstore.KeyUsedBytes, 0)
}

// State returns a snapshot of the accounting values.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := State{
		UsedBytes: kvstore.GetLong(t.store, kvstore.KeyUsedBytes, 0),
		CapBytes:  t.ResolveCapBytes(),
		ResetDay:  t.resetDay(),
	}
	if ms, ok := t.store.LookupLong(kvstore.KeyUsedBytesLastTime); ok {
		s.LastUpdate = t.cal.FromMillis(ms)
	}
	return s
}

// SetResetDay sets the day of month the billing period restarts on.
func (t *Tracker) SetResetDay(day int) error {
	if day < 1 || day > 31 {
		return errors.New().WithData(ErrInvalidResetDay, day)
	}
	return t.store.SetLong(kvstore.KeyDataCapResetDay, int64(day))
}

// ResetDay returns the configured reset day of month.
func (t *Tracker) ResetDay() int {
	return t.resetDay()
}

// SetUserCapMB stores the user's cap override in megabytes. Zero or a
// negative value disables the override.
func (t *Tracker) SetUserCapMB(mb int64) error {
	return t.store.SetString(kvstore.KeyUserDataCap, cast.ToString(mb))
}

// SetAdminCapMB stores the administrator cap in megabytes.
func (t *Tracker) SetAdminCapMB(mb int64) error {
	if mb < 0 {
		return errors.New().WithData(ErrInvalidCap, mb)
	}
	return t.store.SetLong(kvstore.KeyDataCap, mb)
}

func (t *Tracker) resetDay() int {
	day := kvstore.GetLong(t.store, kvstore.KeyDataCapResetDay, DefaultResetDay)
	if day < 1 || day > 31 {
		t.log.Warn().Int64("day", day).Msg("Stored reset day out of range, using default")
		return DefaultResetDay
	}
	return int(day)
}

// reconcileLocked zeroes usage when a reset boundary lies between the day
// of the last update and today. Both today and the boundary derive from
// the same now, so a midnight tick between them cannot split the decision.
// The reset stamps the update time so the crossing is consumed once.
func (t *Tracker) reconcileLocked(now time.Time) {
	today0 := calendar.StartOfDay(now)

	last := now
	if ms, ok := t.store.LookupLong(kvstore.KeyUsedBytesLastTime); ok {
		last = t.cal.FromMillis(ms)
	}
	lastUsed0 := calendar.StartOfDay(last)

	boundary := calendar.PreviousDayInMonth(now, t.resetDay())

	if lastUsed0.Before(boundary) && !boundary.After(today0) {
		t.log.Info().
			Time("reset_time", boundary).
			Time("last_time", lastUsed0).
			Time("now", today0).
			Msg("Data usage reset for new billing period")
		t.persist(kvstore.KeyUsedBytes, 0)
		t.persist(kvstore.KeyUsedBytesLastTime, now.UnixMilli())
	}
}

func (t *Tracker) persist(key string, value int64) {
	if err := t.store.SetLong(key, value); err != nil {
		t.log.ErrorWithCode(errors.New().Wrap(ErrPersistUsage, err)).
			Str("key", key).
			Int64("value", value).
			Msg("Failed to persist usage")
	}
}

func mbToBytes(mb int64) int64 {
	if mb > Unlimited/bytesPerMB {
		return Unlimited
	}
	return mb * bytesPerMB
}
