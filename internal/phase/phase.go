// Package phase persists the measurement state machine's current phase.
package phase

import (
	"strings"

	"codeberg.org/mutker/measprefs/internal/kvstore"
	"codeberg.org/mutker/measprefs/internal/logger"
)

// Phase is a step of the measurement state machine.
type Phase int

const (
	None Phase = iota
	Initialise
	InitialiseAnonymous
	Activate
	Associate
	CheckConfigVersion
	DownloadConfig
	RunInitTests
	SubmitParamsAndActivate
	ExecuteQueue
	RunningTest
	SubmitResults
	SubmitResultsAnonymous
	Shutdown
)

var names = [...]string{
	None:                    "NONE",
	Initialise:              "INITIALISE",
	InitialiseAnonymous:     "INITIALISE_ANONYMOUS",
	Activate:                "ACTIVATE",
	Associate:               "ASSOCIATE",
	CheckConfigVersion:      "CHECK_CONFIG_VERSION",
	DownloadConfig:          "DOWNLOAD_CONFIG",
	RunInitTests:            "RUN_INIT_TESTS",
	SubmitParamsAndActivate: "SUBMIT_PARAMS_AND_ACTIVATE",
	ExecuteQueue:            "EXECUTE_QUEUE",
	RunningTest:             "RUNNING_TEST",
	SubmitResults:           "SUBMIT_RESULTS",
	SubmitResultsAnonymous:  "SUBMIT_RESULTS_ANONYMOUS",
	Shutdown:                "SHUTDOWN",
}

// byName is keyed by lower-cased canonical name.
var byName = func() map[string]Phase {
	m := make(map[string]Phase, len(names))
	for p, name := range names {
		m[strings.ToLower(name)] = Phase(p)
	}
	return m
}()

// String returns the canonical persisted name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(names) {
		return names[None]
	}
	return names[p]
}

// Parse maps a persisted name onto a Phase, ignoring case. Unknown names,
// including padded ones, return None and false.
func Parse(s string) (Phase, bool) {
	p, ok := byName[strings.ToLower(s)]
	if !ok {
		return None, false
	}
	return p, true
}

// All returns every phase in declaration order.
func All() []Phase {
	out := make([]Phase, len(names))
	for i := range names {
		out[i] = Phase(i)
	}
	return out
}

// Store reads and writes the persisted phase.
type Store struct {
	kv  kvstore.Store
	log logger.Logger
}

func NewStore(kv kvstore.Store, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{kv: kv, log: log}
}

// SavePhase persists p's canonical name.
func (s *Store) SavePhase(p Phase) error {
	if err := s.kv.SetString(kvstore.KeyStateMachinePhase, p.String()); err != nil {
		return err
	}
	s.log.Debug().Str("phase", p.String()).Msg("Phase saved")
	return nil
}

// LoadPhase returns the persisted phase, or None when nothing usable is
// stored.
func (s *Store) LoadPhase() Phase {
	raw, ok := s.kv.LookupString(kvstore.KeyStateMachinePhase)
	if !ok {
		return None
	}
	p, ok := Parse(raw)
	if !ok {
		s.log.Warn().Str("value", raw).Msg("Unrecognised persisted phase, using NONE")
	}
	return p
}
