// Package settings is the explicitly constructed settings service the
// measurement scheduler holds: typed preferences, data-cap accounting,
// schedule reconciliation and the persisted state-machine phase.
package settings

import (
	"time"

	"codeberg.org/mutker/measprefs/internal/calendar"
	"codeberg.org/mutker/measprefs/internal/config"
	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/kvstore"
	"codeberg.org/mutker/measprefs/internal/logger"
	"codeberg.org/mutker/measprefs/internal/phase"
	"codeberg.org/mutker/measprefs/internal/quota"
	"codeberg.org/mutker/measprefs/internal/schedule"
	"github.com/coder/quartz"
	"github.com/google/uuid"
)

// Telephony supplies the SIM operator code for submissions.
type Telephony interface {
	SimOperator() string
}

type Service struct {
	cfg config.Config
	kv  kvstore.Store
	cal *calendar.Source
	log logger.Logger

	tracker    *quota.Tracker
	reconciler *schedule.Reconciler
	cache      *schedule.StoreCache
	phases     *phase.Store
	telephony  Telephony

	ownsStore bool
}

type options struct {
	clock     quartz.Clock
	net       quota.NetworkState
	telephony Telephony
	log       logger.Logger
}

type Option func(*options)

// WithClock replaces the real clock, mostly for tests.
func WithClock(c quartz.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithNetworkState sets the collaborator that reports unmetered links.
func WithNetworkState(n quota.NetworkState) Option {
	return func(o *options) { o.net = n }
}

func WithTelephony(t Telephony) Option {
	return func(o *options) { o.telephony = t }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New builds a Service over an existing store. The caller keeps ownership
// of kv.
func New(cfg *config.Config, kv kvstore.Store, opts ...Option) (*Service, error) {
	errFactory := errors.New()

	if cfg == nil {
		return nil, errFactory.New(ErrMissingConfig)
	}
	if kv == nil {
		return nil, errFactory.New(ErrMissingStore)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.New("settings")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cal := calendar.NewSource(o.clock, loc)

	tracker, err := quota.NewTracker(kv, cal, o.net, o.log.With("quota"))
	if err != nil {
		return nil, err
	}
	cache := schedule.NewStoreCache(kv, o.log.With("schedule_cache"))

	return &Service{
		cfg:        *cfg,
		kv:         kv,
		cal:        cal,
		log:        o.log,
		tracker:    tracker,
		reconciler: schedule.NewReconciler(kv, cache, o.log.With("schedule")),
		cache:      cache,
		phases:     phase.NewStore(kv, o.log.With("phase")),
		telephony:  o.telephony,
	}, nil
}

// Open opens the sqlite preference store at cfg.StorePath and builds a
// Service that closes it on Close.
func Open(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New().New(ErrMissingConfig)
	}

	kv, err := kvstore.Open(kvstore.Config{DBPath: cfg.StorePath}, logger.New("kvstore"))
	if err != nil {
		return nil, errors.New().Wrap(ErrOpenStore, err)
	}

	s, err := New(cfg, kv, opts...)
	if err != nil {
		kv.Close()
		return nil, err
	}
	s.ownsStore = true
	return s, nil
}

// Close releases the store if the Service opened it.
func (s *Service) Close() error {
	if !s.ownsStore {
		return nil
	}
	return s.kv.Close()
}

func (s *Service) Config() config.Config               { return s.cfg }
func (s *Service) Tracker() *quota.Tracker             { return s.tracker }
func (s *Service) Reconciler() *schedule.Reconciler    { return s.reconciler }
func (s *Service) ScheduleCache() *schedule.StoreCache { return s.cache }
func (s *Service) Phases() *phase.Store                { return s.phases }

// Data usage

func (s *Service) AppendUsedBytes(n int64)                 { s.tracker.ChargeBytes(n) }
func (s *Service) IsDataCapReached(prospective int64) bool { return s.tracker.IsCapReached(prospective) }
func (s *Service) DataCapBytes() int64                     { return s.tracker.ResolveCapBytes() }
func (s *Service) UsedBytes() int64                        { return s.tracker.UsedBytes() }
func (s *Service) ResetDataUsage()                         { s.tracker.ResetUsage() }

// Schedule

// UpdateConfig reports whether candidate should replace the schedule in
// effect.
func (s *Service) UpdateConfig(candidate *schedule.Descriptor) bool {
	return s.reconciler.Check(candidate)
}

// SetConfig applies candidate's policy and makes it the schedule in effect.
func (s *Service) SetConfig(candidate *schedule.Descriptor) error {
	if err := s.reconciler.ApplyPolicy(candidate); err != nil {
		return err
	}
	if err := s.cache.Save(candidate); err != nil {
		return errors.New().Wrap(ErrSetConfig, err)
	}
	return nil
}

// State machine

func (s *Service) SaveState(p phase.Phase) error { return s.phases.SavePhase(p) }
func (s *Service) State() phase.Phase            { return s.phases.LoadPhase() }

// StateMachineFailure records that the last run failed, so a manual test
// run asks for reactivation first.
func (s *Service) StateMachineFailure() error {
	return s.kv.SetBool(kvstore.KeyStateMachineStatus, false)
}

func (s *Service) StateMachineSuccess() error {
	return s.kv.SetBool(kvstore.KeyStateMachineStatus, true)
}

func (s *Service) StateMachineStatus() bool {
	return kvstore.GetBool(s.kv, kvstore.KeyStateMachineStatus, true)
}

// Preferences

// IsServiceEnabled prefers the explicit user switch and falls back to the
// schedule's background-test flag.
func (s *Service) IsServiceEnabled() bool {
	if v, ok := s.kv.LookupBool(kvstore.KeyServiceEnabled); ok {
		return v
	}
	return kvstore.GetBool(s.kv, kvstore.KeyBackgroundTest, true)
}

func (s *Service) SetServiceEnabled(enabled bool) error {
	return s.kv.SetBool(kvstore.KeyServiceEnabled, enabled)
}

func (s *Service) WakeUpEnabled() bool {
	return kvstore.GetBool(s.kv, kvstore.KeyWakeUpEnabled, false)
}

func (s *Service) SetWakeUpEnabled(enabled bool) error {
	return s.kv.SetBool(kvstore.KeyWakeUpEnabled, enabled)
}

// TestStartWindow is the window scheduled tests may start in.
func (s *Service) TestStartWindow() time.Duration {
	return s.cfg.StartWindow(s.WakeUpEnabled())
}

// LocationServiceType defaults to GPS until a preference is stored.
func (s *Service) LocationServiceType() schedule.LocationType {
	v, ok := s.kv.LookupString(kvstore.KeyLocationType)
	if !ok || v == string(schedule.LocationGPS) {
		return schedule.LocationGPS
	}
	return schedule.LocationNetwork
}

func (s *Service) SetLocationServiceType(t schedule.LocationType) error {
	return s.kv.SetString(kvstore.KeyLocationType, string(t))
}

func (s *Service) ForceDownload() bool {
	return kvstore.GetBool(s.kv, kvstore.KeyForceDownload, false)
}

func (s *Service) SetForceDownload(force bool) error {
	return s.kv.SetBool(kvstore.KeyForceDownload, force)
}

func (s *Service) UserSelfID() (string, bool) {
	return s.kv.LookupString(kvstore.KeyUserSelfIdentifier)
}

func (s *Service) SetUserSelfID(id string) error {
	return s.kv.SetString(kvstore.KeyUserSelfIdentifier, id)
}

// UnitID returns the device's unit identifier, generating and persisting
// one on first use. If persisting fails the generated id is still
// returned with the error.
func (s *Service) UnitID() (string, error) {
	if id, ok := s.kv.LookupString(kvstore.KeyUnitID); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := s.kv.SetString(kvstore.KeyUnitID, id); err != nil {
		return id, err
	}
	s.log.Info().Str("unit_id", id).Msg("Generated unit identifier")
	return id, nil
}
