package schedule

import "codeberg.org/mutker/measprefs/internal/errors"

// AlarmType is how scheduled tests are woken.
type AlarmType string

const (
	AlarmWakeup   AlarmType = "wakeup"
	AlarmNoWakeup AlarmType = "no_wakeup"
)

// LocationType is the location provider tests should use.
type LocationType string

const (
	LocationGPS     LocationType = "gps"
	LocationNetwork LocationType = "network"
)

// NoDataCap marks a descriptor without a default data cap.
const NoDataCap int64 = -1

// Descriptor is the part of a downloaded schedule the settings layer
// cares about. Everything else in the schedule is opaque here.
type Descriptor struct {
	Version          string       `json:"version"`
	AlarmType        AlarmType    `json:"alarm_type"`
	LocationType     LocationType `json:"location_type"`
	ScheduledBatches int64        `json:"scheduled_batches"`
	BackgroundTest   bool         `json:"background_test"`
	// DataCapDefault is the administrator cap in MB, NoDataCap if unset.
	DataCapDefault int64 `json:"data_cap_default"`
}

// NeedsUpdate reports whether candidate supersedes d. Versions are
// opaque identities: any difference counts.
func (d *Descriptor) NeedsUpdate(candidate *Descriptor) bool {
	return candidate.Version != d.Version
}

// HasDataCap reports whether the descriptor carries a default cap.
func (d *Descriptor) HasDataCap() bool {
	return d.DataCapDefault >= 0
}

func (d *Descriptor) Validate() error {
	if d == nil {
		return errors.New().New(ErrNilDescriptor)
	}
	if d.Version == "" {
		return errors.New().New(ErrMissingVersion)
	}
	return nil
}
