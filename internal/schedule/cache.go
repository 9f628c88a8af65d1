package schedule

import (
	"encoding/json"

	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/kvstore"
	"codeberg.org/mutker/measprefs/internal/logger"
)

// Cache yields the schedule descriptor currently in effect.
type Cache interface {
	LoadPersisted() (*Descriptor, bool)
}

// StoreCache keeps the descriptor as JSON in the preference store.
type StoreCache struct {
	kv  kvstore.Store
	log logger.Logger
}

func NewStoreCache(kv kvstore.Store, log logger.Logger) *StoreCache {
	if log == nil {
		log = logger.Nop()
	}
	return &StoreCache{kv: kv, log: log}
}

// Save replaces the persisted descriptor.
func (c *StoreCache) Save(d *Descriptor) error {
	errFactory := errors.New()

	if err := d.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return errFactory.Wrap(errors.ErrEncode, err)
	}
	if err := c.kv.SetString(kvstore.KeyScheduleConfig, string(payload)); err != nil {
		return errFactory.Wrap(ErrCacheWrite, err)
	}
	return nil
}

// LoadPersisted returns a fresh copy of the persisted descriptor. A
// payload that no longer decodes is logged and reported as absent.
func (c *StoreCache) LoadPersisted() (*Descriptor, bool) {
	raw, ok := c.kv.LookupString(kvstore.KeyScheduleConfig)
	if !ok {
		return nil, false
	}

	d := &Descriptor{DataCapDefault: NoDataCap}
	if err := json.Unmarshal([]byte(raw), d); err != nil {
		c.log.ErrorWithCode(errors.New().Wrap(errors.ErrDecode, err)).
			Msg("Discarding undecodable schedule descriptor")
		return nil, false
	}
	if err := d.Validate(); err != nil {
		c.log.Warn().Err(err).Msg("Discarding invalid schedule descriptor")
		return nil, false
	}
	return d, true
}

// Clear drops the persisted descriptor.
func (c *StoreCache) Clear() error {
	return c.kv.Remove(kvstore.KeyScheduleConfig)
}
