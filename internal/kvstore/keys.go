package kvstore

// Stable preference keys. Renaming any of these orphans persisted data.
const (
	KeyUsedBytes         = "used_bytes"
	KeyUsedBytesLastTime = "used_bytes_last_time"
	KeyDataCap           = "data_cap"
	KeyUserDataCap       = "user_data_cap"
	KeyDataCapResetDay   = "data_cap_day_in_month_reset"

	KeyStateMachineStatus = "state_machine_status"
	KeyStateMachinePhase  = "state_machine_phase"

	KeyLocationType       = "location_type"
	KeyWakeUpEnabled      = "wakeup_enabled"
	KeyNumberOfTests      = "number_of_tests_scheduled"
	KeyBackgroundTest     = "background_test"
	KeyServiceEnabled     = "service_enabled"
	KeyForceDownload      = "force_download"
	KeyScheduleConfig     = "schedule_config"
	KeyUnitID             = "unit_id"
	KeyUserSelfIdentifier = "user_self_id"
)
