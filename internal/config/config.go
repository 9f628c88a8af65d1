package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/measprefs/internal/errors"
	"codeberg.org/mutker/measprefs/internal/logger"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix = "MEASPREFS"
	DefaultLogLevel  = string(LogLevelInfo)
	DefaultStorePath = "measprefs.db"
	DefaultTimezone  = "Local"

	configName = "measprefs"
)

// Property keys of the application properties file.
const (
	KeyAnonymous             = "anonymous"
	KeyProtocolScheme        = "protocol_scheme"
	KeySubmitPath            = "submit_path"
	KeyDownloadConfigPath    = "download_config_path"
	KeyEnterpriseID          = "enterprise_id"
	KeyUserSelfIdentifier    = "user_self_identifier"
	KeyDataCapWelcome        = "data_cap_welcome"
	KeyCollectTrafficData    = "collect_traffic_data"
	KeyTestStartWindow       = "test_start_window"
	KeyTestStartWindowWakeup = "test_start_window_rtc_wakeup"
	KeyAppVersionName        = "app_version_name"
	KeyAppVersionCode        = "app_version_code"
	KeyStorePath             = "store_path"
	KeyLogLevel              = "log_level"
	KeyTimezone              = "timezone"
)

// Config holds the static application properties. It is read once at
// startup; mutable user preferences live in the key-value store.
type Config struct {
	Anonymous          bool
	ProtocolScheme     string
	SubmitPath         string
	DownloadConfigPath string
	EnterpriseID       string
	UserSelfID         bool
	DataCapWelcome     bool
	CollectTrafficData bool

	// Test start windows in milliseconds.
	TestStartWindow       int64
	TestStartWindowWakeup int64

	AppVersionName string
	AppVersionCode int64

	StorePath string
	LogLevel  string
	Timezone  string
}

// RegisterFlags adds the command line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the application properties file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("store-path", DefaultStorePath, "Path to the preference database")
	fs.String("timezone", DefaultTimezone, "IANA timezone used for day and month boundaries")
}

// Load reads the properties file, environment and flags. A missing or
// unreadable properties file is logged and the defaults are used; only an
// invalid log level or timezone fails the load.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()
	log := logger.New("config")

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyStorePath, DefaultStorePath)
	v.SetDefault(KeyTimezone, DefaultTimezone)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for key, flag := range map[string]string{
			KeyLogLevel:  "log-level",
			KeyStorePath: "store-path",
			KeyTimezone:  "timezone",
			"config":     "config",
		} {
			if f := o.flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrBindFlags, err)
				}
			}
		}
	}

	configPath := o.configPath
	if configPath == "" {
		configPath = v.GetString("config")
	}
	readProperties(v, configPath, log)

	cfg := &Config{
		Anonymous:             readBool(v, KeyAnonymous, log),
		ProtocolScheme:        v.GetString(KeyProtocolScheme),
		SubmitPath:            v.GetString(KeySubmitPath),
		DownloadConfigPath:    v.GetString(KeyDownloadConfigPath),
		EnterpriseID:          v.GetString(KeyEnterpriseID),
		UserSelfID:            readBool(v, KeyUserSelfIdentifier, log),
		DataCapWelcome:        readBool(v, KeyDataCapWelcome, log),
		CollectTrafficData:    readBool(v, KeyCollectTrafficData, log),
		TestStartWindow:       readInt64(v, KeyTestStartWindow, log),
		TestStartWindowWakeup: readInt64(v, KeyTestStartWindowWakeup, log),
		AppVersionName:        v.GetString(KeyAppVersionName),
		AppVersionCode:        readInt64(v, KeyAppVersionCode, log),
		StorePath:             v.GetString(KeyStorePath),
		LogLevel:              strings.ToLower(v.GetString(KeyLogLevel)),
		Timezone:              v.GetString(KeyTimezone),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("store_path", cfg.StorePath).
		Str("timezone", cfg.Timezone).
		Bool("anonymous", cfg.Anonymous).
		Msg("Config loaded")

	return cfg, nil
}

func readProperties(v *viper.Viper, path string, log logger.Logger) {
	v.SetConfigType("properties")
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Properties file not found, using defaults")
			return
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/measprefs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Debug().Msg("No properties file found, using defaults")
			return
		}
		log.ErrorWithCode(errors.New().Wrap(errors.ErrReadConfig, err)).
			Msg("Failed to load properties")
	}
}

func readInt64(v *viper.Viper, key string, log logger.Logger) int64 {
	raw := v.Get(key)
	if raw == nil {
		return 0
	}
	var (
		n   int64
		err error
	)
	// Property text is decimal; cast would read "0100" as octal.
	if str, ok := raw.(string); ok {
		n, err = strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	} else {
		n, err = cast.ToInt64E(raw)
	}
	if err != nil {
		log.Warn().Str("key", key).Interface("value", raw).Msg("Malformed numeric property, defaulting to 0")
		return 0
	}
	return n
}

func readBool(v *viper.Viper, key string, log logger.Logger) bool {
	raw := v.Get(key)
	if raw == nil {
		return false
	}
	b, err := cast.ToBoolE(strings.TrimSpace(cast.ToString(raw)))
	if err != nil {
		log.Warn().Str("key", key).Interface("value", raw).Msg("Malformed boolean property, defaulting to false")
		return false
	}
	return b
}

// Validate checks the fields that cannot be degraded silently.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == DefaultTimezone {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidTimezone, err)
	}
	return loc, nil
}

// StartWindow returns the test start window matching the alarm mode.
func (c *Config) StartWindow(wakeup bool) time.Duration {
	if wakeup {
		return time.Duration(c.TestStartWindowWakeup) * time.Millisecond
	}
	return time.Duration(c.TestStartWindow) * time.Millisecond
}
