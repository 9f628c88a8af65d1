package quota_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/measprefs/internal/calendar"
	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/kvstore"
	"codeberg.org/mutker/measprefs/internal/logger"
	"codeberg.org/mutker/measprefs/internal/quota"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

type fixture struct {
	tracker   *quota.Tracker
	store     *kvstore.MemoryStore
	clock     *quartz.Mock
	unmetered bool
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	return newFixtureIn(t, start, time.UTC)
}

func newFixtureIn(t *testing.T, start time.Time, loc *time.Location) *fixture {
	t.Helper()
	f := &fixture{
		store: kvstore.NewMemoryStore(),
		clock: quartz.NewMock(t),
	}
	f.clock.Set(start)

	tracker, err := quota.NewTracker(
		f.store,
		calendar.NewSource(f.clock, loc),
		quota.UnmeteredFunc(func() bool { return f.unmetered }),
		logger.Nop(),
	)
	require.NoError(t, err)
	f.tracker = tracker
	return f
}

func at(y int, m time.Month, d, h, min, sec int) time.Time {
	return time.Date(y, m, d, h, min, sec, 0, time.UTC)
}

func TestUnmeteredChargeIsNoop(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	f.tracker.ChargeBytes(100)
	f.unmetered = true

	for _, n := range []int64{0, 1, 50 * mb, quota.Unlimited} {
		f.tracker.ChargeBytes(n)
		assert.Equal(t, int64(100), f.tracker.UsedBytes())
	}

	require.NoError(t, f.tracker.SetAdminCapMB(1))
	f.tracker.ChargeBytes(2 * mb)
	assert.False(t, f.tracker.IsCapReached(10*mb), "unmetered never reaches the cap")
}

func TestUnmeteredDoesNotStampTime(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	f.unmetered = true
	f.tracker.ChargeBytes(10)

	assert.False(t, f.store.Contains(kvstore.KeyUsedBytesLastTime))
	assert.False(t, f.store.Contains(kvstore.KeyUsedBytes))
}

func TestChargesWithinPeriodSum(t *testing.T) {
	f := newFixture(t, at(2026, 5, 2, 8, 0, 0))
	charges := []int64{0, 1, 1500, 7 * mb, 42}

	var want int64
	for i, n := range charges {
		f.clock.Set(at(2026, 5, 2+i*5, 8, 0, 0))
		f.tracker.ChargeBytes(n)
		want += n
	}

	assert.Equal(t, want, f.tracker.UsedBytes())
	st := f.tracker.State()
	assert.True(t, at(2026, 5, 22, 8, 0, 0).Equal(st.LastUpdate))
	assert.Equal(t, quota.DefaultResetDay, st.ResetDay)
}

func TestNegativeChargeIgnored(t *testing.T) {
	f := newFixture(t, at(2026, 5, 2, 8, 0, 0))
	f.tracker.ChargeBytes(10)
	f.tracker.ChargeBytes(-5)
	assert.Equal(t, int64(10), f.tracker.UsedBytes())
}

func TestChargeSaturates(t *testing.T) {
	f := newFixture(t, at(2026, 5, 2, 8, 0, 0))
	f.tracker.ChargeBytes(quota.Unlimited - 1)
	f.tracker.ChargeBytes(10)
	assert.Equal(t, quota.Unlimited, f.tracker.UsedBytes())
}

func TestCapScenario(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	require.NoError(t, f.tracker.SetAdminCapMB(1000))
	f.tracker.ChargeBytes(900 * mb)

	f.tracker.ChargeBytes(50 * mb)

	assert.Equal(t, int64(950*mb), f.tracker.UsedBytes())
	assert.False(t, f.tracker.IsCapReached(0))
	assert.False(t, f.tracker.Reached())
	assert.True(t, f.tracker.IsCapReached(50*mb), "landing exactly on the cap is denied")
	assert.False(t, f.tracker.IsCapReached(50*mb-1))
	assert.True(t, f.tracker.IsCapReached(51*mb))
}

func TestCapReachedWhenOverCap(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	require.NoError(t, f.tracker.SetAdminCapMB(1))
	f.tracker.ChargeBytes(3 * mb)
	assert.True(t, f.tracker.Reached())
}

func TestUnlimitedNeverOverflows(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	f.tracker.ChargeBytes(5 * mb)

	assert.Equal(t, quota.Unlimited, f.tracker.ResolveCapBytes())
	assert.False(t, f.tracker.IsCapReached(quota.Unlimited-5*mb-1))
	assert.True(t, f.tracker.IsCapReached(quota.Unlimited))
}

func TestCapResolutionPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		user    *string
		userInt *int64
		admin   *int64
		want    int64
	}{
		{name: "nothing set", want: quota.Unlimited},
		{name: "admin only", admin: ptr(int64(300)), want: 300 * mb},
		{name: "user only", user: ptr("200"), want: 200 * mb},
		{name: "user beats admin", user: ptr("200"), admin: ptr(int64(300)), want: 200 * mb},
		{name: "user zero falls back to admin", user: ptr("0"), admin: ptr(int64(300)), want: 300 * mb},
		{name: "user negative falls back to admin", user: ptr("-1"), admin: ptr(int64(300)), want: 300 * mb},
		{name: "malformed user falls back to admin", user: ptr("lots"), admin: ptr(int64(300)), want: 300 * mb},
		{name: "admin zero is unlimited", admin: ptr(int64(0)), want: quota.Unlimited},
		{name: "user stored as long", userInt: ptr(int64(5)), admin: ptr(int64(300)), want: 5 * mb},
		{name: "huge user cap saturates", user: ptr("9223372036854775807"), want: quota.Unlimited},
		{name: "user with whitespace", user: ptr(" 64 "), want: 64 * mb},
		{name: "leading zero is decimal", user: ptr("0100"), want: 100 * mb},
		{name: "leading zero with non-octal digits", user: ptr("0900"), admin: ptr(int64(300)), want: 900 * mb},
		{name: "hex prefix is malformed", user: ptr("0x10"), admin: ptr(int64(300)), want: 300 * mb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
			if tt.user != nil {
				require.NoError(t, f.store.SetString(kvstore.KeyUserDataCap, *tt.user))
			}
			if tt.userInt != nil {
				require.NoError(t, f.store.SetLong(kvstore.KeyUserDataCap, *tt.userInt))
			}
			if tt.admin != nil {
				require.NoError(t, f.store.SetLong(kvstore.KeyDataCap, *tt.admin))
			}
			assert.Equal(t, tt.want, f.tracker.ResolveCapBytes())
		})
	}
}

func TestSetUserCapMB(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	require.NoError(t, f.tracker.SetAdminCapMB(300))
	require.NoError(t, f.tracker.SetUserCapMB(20))
	assert.Equal(t, int64(20*mb), f.tracker.ResolveCapBytes())

	require.NoError(t, f.tracker.SetUserCapMB(0))
	assert.Equal(t, int64(300*mb), f.tracker.ResolveCapBytes())

	err := f.tracker.SetAdminCapMB(-1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, quota.ErrInvalidCap))
}

func TestResetAcrossSkippedMonthsHappensOnce(t *testing.T) {
	f := newFixture(t, at(2026, 3, 10, 9, 0, 0))
	require.NoError(t, f.tracker.SetResetDay(15))
	f.tracker.ChargeBytes(700)

	// Not run across two boundaries (Mar 15, Apr 15).
	f.clock.Set(at(2026, 4, 20, 9, 0, 0))
	assert.False(t, f.tracker.Reached())
	assert.Zero(t, f.tracker.UsedBytes())

	f.tracker.ChargeBytes(40)
	f.clock.Set(at(2026, 4, 20, 18, 0, 0))
	f.tracker.Reached()
	f.tracker.ChargeBytes(2)
	assert.Equal(t, int64(42), f.tracker.UsedBytes(), "no second reset the same day")
}

func TestResetTriggeredByCheckIsConsumed(t *testing.T) {
	f := newFixture(t, at(2026, 3, 30, 9, 0, 0))
	f.tracker.ChargeBytes(500)

	f.clock.Set(at(2026, 4, 2, 9, 0, 0))
	f.tracker.Reached()
	assert.Zero(t, f.tracker.UsedBytes())

	// Usage written by another path after the crossing must survive
	// further checks the same period.
	require.NoError(t, f.store.SetLong(kvstore.KeyUsedBytes, 77))
	f.clock.Set(at(2026, 4, 3, 9, 0, 0))
	f.tracker.Reached()
	assert.Equal(t, int64(77), f.tracker.UsedBytes())
}

func TestNoResetWithoutCrossing(t *testing.T) {
	f := newFixture(t, at(2026, 5, 16, 9, 0, 0))
	require.NoError(t, f.tracker.SetResetDay(15))
	f.tracker.ChargeBytes(10)

	f.clock.Set(at(2026, 6, 14, 23, 59, 59))
	f.tracker.ChargeBytes(5)
	assert.Equal(t, int64(15), f.tracker.UsedBytes())
}

func TestResetOnBoundaryDayItself(t *testing.T) {
	f := newFixture(t, at(2026, 5, 14, 9, 0, 0))
	require.NoError(t, f.tracker.SetResetDay(15))
	f.tracker.ChargeBytes(10)

	f.clock.Set(at(2026, 5, 15, 0, 0, 0))
	f.tracker.ChargeBytes(1)
	assert.Equal(t, int64(1), f.tracker.UsedBytes())
}

func TestFirstChargeWithoutTimestampDoesNotReset(t *testing.T) {
	f := newFixture(t, at(2026, 5, 15, 9, 0, 0))
	require.NoError(t, f.tracker.SetResetDay(15))
	require.NoError(t, f.store.SetLong(kvstore.KeyUsedBytes, 90))

	f.tracker.ChargeBytes(10)
	assert.Equal(t, int64(100), f.tracker.UsedBytes())
}

func TestResetDay31InThirtyDayMonth(t *testing.T) {
	f := newFixture(t, at(2026, 4, 29, 10, 0, 0))
	require.NoError(t, f.tracker.SetResetDay(31))
	f.tracker.ChargeBytes(1000)

	f.clock.Set(at(2026, 4, 30, 10, 0, 0))
	f.tracker.ChargeBytes(3)
	assert.Equal(t, int64(3), f.tracker.UsedBytes(), "reset on April 30th, the clamped 31st")

	f.clock.Set(at(2026, 5, 20, 10, 0, 0))
	f.tracker.ChargeBytes(4)
	assert.Equal(t, int64(7), f.tracker.UsedBytes())

	f.clock.Set(at(2026, 5, 31, 0, 0, 1))
	f.tracker.ChargeBytes(5)
	assert.Equal(t, int64(5), f.tracker.UsedBytes())
}

func TestMidnightEdge(t *testing.T) {
	f := newFixture(t, at(2026, 7, 14, 23, 59, 59))
	require.NoError(t, f.tracker.SetResetDay(15))
	f.tracker.ChargeBytes(100)

	// The last update is one second before the boundary; the check runs
	// one second after it.
	f.clock.Set(at(2026, 7, 15, 0, 0, 0))
	assert.False(t, f.tracker.Reached())
	assert.Zero(t, f.tracker.UsedBytes())

	f.tracker.ChargeBytes(9)
	f.clock.Set(at(2026, 7, 15, 0, 0, 1))
	f.tracker.ChargeBytes(1)
	assert.Equal(t, int64(10), f.tracker.UsedBytes())
}

func TestResetAcrossDSTInLocalTime(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	// Clocks go forward at 01:00 GMT on Sunday 29 March 2026.
	f := newFixtureIn(t, time.Date(2026, 3, 28, 22, 30, 0, 0, london), london)
	require.NoError(t, f.tracker.SetResetDay(29))
	f.tracker.ChargeBytes(100)

	f.clock.Set(time.Date(2026, 3, 29, 0, 30, 0, 0, london))
	assert.False(t, f.tracker.Reached())
	assert.Zero(t, f.tracker.UsedBytes())

	f.clock.Set(time.Date(2026, 3, 29, 12, 0, 0, 0, london))
	f.tracker.ChargeBytes(7)
	f.clock.Set(time.Date(2026, 3, 29, 23, 30, 0, 0, london))
	f.tracker.ChargeBytes(3)
	assert.Equal(t, int64(10), f.tracker.UsedBytes(), "one reset on the short day")

	// 23:30 UTC on the 24th of October is already the 25th in London.
	require.NoError(t, f.tracker.SetResetDay(25))
	f.clock.Set(time.Date(2026, 10, 20, 12, 0, 0, 0, london))
	f.tracker.ChargeBytes(50)
	f.clock.Set(time.Date(2026, 10, 24, 23, 30, 0, 0, time.UTC))
	f.tracker.ChargeBytes(1)
	assert.Equal(t, int64(1), f.tracker.UsedBytes(), "boundary follows local midnight")

	// Clocks go back on the 25th; the long day is still one period.
	f.clock.Set(time.Date(2026, 10, 25, 23, 30, 0, 0, time.UTC))
	f.tracker.ChargeBytes(2)
	assert.Equal(t, int64(3), f.tracker.UsedBytes())
}

func TestResetUsageKeepsTimestamp(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	f.tracker.ChargeBytes(123)
	before := f.tracker.State().LastUpdate

	f.clock.Set(at(2026, 5, 11, 12, 0, 0))
	f.tracker.ResetUsage()

	st := f.tracker.State()
	assert.Zero(t, st.UsedBytes)
	assert.True(t, before.Equal(st.LastUpdate))
}

func TestResetDayValidation(t *testing.T) {
	f := newFixture(t, at(2026, 5, 10, 12, 0, 0))
	for _, day := range []int{0, 32, -3} {
		err := f.tracker.SetResetDay(day)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, quota.ErrInvalidResetDay))
	}
	require.NoError(t, f.tracker.SetResetDay(31))
	assert.Equal(t, 31, f.tracker.ResetDay())

	require.NoError(t, f.store.SetLong(kvstore.KeyDataCapResetDay, 77))
	assert.Equal(t, quota.DefaultResetDay, f.tracker.ResetDay())
}

func TestNewTrackerRequiresStore(t *testing.T) {
	_, err := quota.NewTracker(nil, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, quota.ErrMissingStore))
}

func ptr[T any](v T) *T { return &v }
