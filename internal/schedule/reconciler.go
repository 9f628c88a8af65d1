// Package schedule decides when a downloaded measurement schedule replaces
// the one in effect and copies its policy into preferences.
package schedule

import (
	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/kvstore"
	"codeberg.org/mutker/measprefs/internal/logger"
)

// Decision holds the independent reasons to adopt a candidate schedule.
type Decision struct {
	Absent bool // nothing persisted yet
	Stale  bool // persisted version is superseded
	Forced bool // explicit refresh requested
}

// Adopt reports whether any reason holds.
func (d Decision) Adopt() bool {
	return d.Absent || d.Stale || d.Forced
}

// Reasons lists the reasons that hold, for diagnostics.
func (d Decision) Reasons() []string {
	var out []string
	if d.Absent {
		out = append(out, "absent")
	}
	if d.Stale {
		out = append(out, "stale")
	}
	if d.Forced {
		out = append(out, "forced")
	}
	return out
}

type Reconciler struct {
	kv    kvstore.Store
	cache Cache
	log   logger.Logger
}

func NewReconciler(kv kvstore.Store, cache Cache, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{kv: kv, cache: cache, log: log}
}

// Evaluate computes every adoption reason for candidate against current.
// current may be nil.
func (r *Reconciler) Evaluate(current, candidate *Descriptor, force bool) Decision {
	d := Decision{Forced: force}
	if current == nil {
		d.Absent = true
	} else if candidate != nil && current.NeedsUpdate(candidate) {
		d.Stale = true
	}
	return d
}

// ShouldAdopt reports whether candidate must replace current. Any one
// reason is enough. An invalid candidate is only logged here; ApplyPolicy
// and StoreCache.Save reject it.
func (r *Reconciler) ShouldAdopt(current, candidate *Descriptor, force bool) bool {
	d := r.Evaluate(current, candidate, force)

	ev := r.log.Debug().
		Bool("absent", d.Absent).
		Bool("stale", d.Stale).
		Bool("forced", d.Forced)
	if err := candidate.Validate(); err != nil {
		ev = ev.AnErr("candidate_error", err)
	} else {
		ev = ev.Str("candidate_version", candidate.Version)
	}
	if current != nil {
		ev = ev.Str("current_version", current.Version)
	}
	ev.Bool("adopt", d.Adopt()).Msg("Schedule reconciled")

	return d.Adopt()
}

// Check evaluates candidate against the cached descriptor, taking the
// force flag from the force_download preference.
func (r *Reconciler) Check(candidate *Descriptor) bool {
	var current *Descriptor
	if r.cache != nil {
		if d, ok := r.cache.LoadPersisted(); ok {
			current = d
		}
	}
	force := kvstore.GetBool(r.kv, kvstore.KeyForceDownload, false)
	return r.ShouldAdopt(current, candidate, force)
}

// ApplyPolicy copies candidate's policy into preferences. Wake-up and
// location modes are only written when the user has not set them; the
// batch count and background flag always follow the schedule.
func (r *Reconciler) ApplyPolicy(candidate *Descriptor) error {
	errFactory := errors.New()

	if err := candidate.Validate(); err != nil {
		return err
	}

	if !r.kv.Contains(kvstore.KeyWakeUpEnabled) {
		if err := r.kv.SetBool(kvstore.KeyWakeUpEnabled, candidate.AlarmType == AlarmWakeup); err != nil {
			return errFactory.Wrap(ErrApplyPolicy, err)
		}
	}

	if !r.kv.Contains(kvstore.KeyLocationType) {
		loc := LocationNetwork
		if candidate.LocationType == LocationGPS {
			loc = LocationGPS
		}
		if err := r.kv.SetString(kvstore.KeyLocationType, string(loc)); err != nil {
			return errFactory.Wrap(ErrApplyPolicy, err)
		}
	}

	if err := r.kv.SetLong(kvstore.KeyNumberOfTests, candidate.ScheduledBatches); err != nil {
		return errFactory.Wrap(ErrApplyPolicy, err)
	}
	if err := r.kv.SetBool(kvstore.KeyBackgroundTest, candidate.BackgroundTest); err != nil {
		return errFactory.Wrap(ErrApplyPolicy, err)
	}

	if candidate.HasDataCap() {
		if err := r.kv.SetLong(kvstore.KeyDataCap, candidate.DataCapDefault); err != nil {
			return errFactory.Wrap(ErrApplyPolicy, err)
		}
	}

	r.log.Info().
		Str("version", candidate.Version).
		Int64("scheduled_batches", candidate.ScheduledBatches).
		Bool("background_test", candidate.BackgroundTest).
		Int64("data_cap_default", candidate.DataCapDefault).
		Msg("Schedule policy applied")

	return nil
}
