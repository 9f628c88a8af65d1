package settings

import (
	"encoding/json"
	"time"

	"codeberg.org/mutker/measprefs/internal/calendar"
	"codeberg.org/mutker/measprefs/internal/errors"
)

// JSON fields added to every result submission.
const (
	JSONUnitID                = "unit_id"
	JSONAppVersionCode        = "app_version_code"
	JSONAppVersionName        = "app_version_name"
	JSONScheduleConfigVersion = "schedule_config_version"
	JSONTimezone              = "timezone"
	JSONTimestamp             = "timestamp"
	JSONDatetime              = "datetime"
	JSONEnterpriseID          = "enterprise_id"
	JSONSimOperatorCode       = "sim_operator_code"
	JSONUserSelfID            = "user_self_id"

	NoScheduleConfig = "no_schedule_config"
)

// SubmissionFields assembles the identity and settings fields attached to
// every result submission.
func (s *Service) SubmissionFields() map[string]any {
	fields := make(map[string]any)

	if !s.cfg.Anonymous {
		id, err := s.UnitID()
		if err != nil {
			s.log.Warn().Err(err).Msg("Unit identifier not persisted")
		}
		fields[JSONUnitID] = id
	}

	fields[JSONAppVersionName] = s.cfg.AppVersionName
	fields[JSONAppVersionCode] = s.cfg.AppVersionCode

	if d, ok := s.cache.LoadPersisted(); ok {
		fields[JSONScheduleConfigVersion] = d.Version
	} else {
		fields[JSONScheduleConfigVersion] = NoScheduleConfig
	}

	now := s.cal.Now()
	fields[JSONTimestamp] = now.Unix()
	fields[JSONDatetime] = now.Format(time.UnixDate)
	fields[JSONTimezone] = calendar.UTCOffsetHours(now)

	if s.cfg.EnterpriseID != "" {
		fields[JSONEnterpriseID] = s.cfg.EnterpriseID
	}

	if s.cfg.UserSelfID {
		if id, ok := s.UserSelfID(); ok {
			fields[JSONUserSelfID] = id
		}
	}

	sim := ""
	if s.telephony != nil {
		sim = s.telephony.SimOperator()
	}
	fields[JSONSimOperatorCode] = sim

	return fields
}

// MarshalSubmission returns SubmissionFields as a JSON object.
func (s *Service) MarshalSubmission() ([]byte, error) {
	b, err := json.Marshal(s.SubmissionFields())
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrEncode, err)
	}
	return b, nil
}
