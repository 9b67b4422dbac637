package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Well-known files inside the collector working directory. These are fixed on
// purpose: one directory corresponds to one collector identity, and the lock
// protocol depends on every instance agreeing on the same paths.
const (
	LockFileName  = ".kudolock"
	StoreFileName = "out.csv"
	ChartFileName = "out.png"
	BackupDirName = "bak.d"
	EnvFileName   = ".env"
)

const (
	DefaultInterval = 60 * time.Second
	MinInterval     = 30 * time.Second
	// Two days of samples at the default 60s interval.
	DefaultMAWindow   = 24 * 60 * 2
	DefaultNumBackups = 10
	DefaultBaseURL    = "https://aihorde.net/api"
)

var (
	ErrMissingAPIKey     = errors.New("API_KEY must be set in the environment or .env")
	ErrPlaceholderAPIKey = errors.New("API_KEY is still the placeholder `foo`; set your own key")
)

// Config is the fully validated runtime configuration. It is constructed once
// at startup and passed into each component; nothing reads the environment
// after Load returns.
type Config struct {
	Dir        string // collector working directory
	APIKey     string
	BaseURL    string
	LogLevel   slog.Level
	Interval   time.Duration
	MAWindow   int
	NumBackups int
	ShowMA     bool
	ShowD1     bool
	ShowMAD1   bool
	Listen     string // optional status/metrics HTTP listener, "" = disabled
	HistoryDSN string // optional SQLite mirror DSN, "" = disabled
	LogFile    string // optional rotating log file, "" = stderr only
}

// LockPath returns the lock file path inside the working directory.
func (c Config) LockPath() string { return filepath.Join(c.Dir, LockFileName) }

// StorePath returns the CSV store path inside the working directory.
func (c Config) StorePath() string { return filepath.Join(c.Dir, StoreFileName) }

// ChartPath returns the rendered chart path inside the working directory.
func (c Config) ChartPath() string { return filepath.Join(c.Dir, ChartFileName) }

// BackupDir returns the backup directory inside the working directory.
func (c Config) BackupDir() string { return filepath.Join(c.Dir, BackupDirName) }

// Load reads configuration from the OS environment, with an optional .env
// file in dir providing defaults underneath it. Out-of-range values are
// clamped to safe defaults with a warning; only a missing or placeholder
// API key is fatal, and it is detected before any lock or store I/O.
func Load(dir string, logger *slog.Logger) (Config, error) {
	v := viper.New()
	envFile := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}
	v.AutomaticEnv()

	v.SetDefault("LOGLEVEL", "INFO")
	v.SetDefault("REQTIME", int(DefaultInterval/time.Second))
	v.SetDefault("MAWINDOW", DefaultMAWindow)
	v.SetDefault("NUMBACKUPS", DefaultNumBackups)
	v.SetDefault("SHOWMA", true)
	v.SetDefault("SHOWD1", true)
	v.SetDefault("SHOWMAD1", true)
	v.SetDefault("HORDE_URL", DefaultBaseURL)
	v.SetDefault("LISTEN", "")
	v.SetDefault("HISTORY_DSN", "")
	v.SetDefault("LOGFILE", "")

	cfg := Config{
		Dir:        dir,
		APIKey:     v.GetString("API_KEY"),
		BaseURL:    strings.TrimRight(v.GetString("HORDE_URL"), "/"),
		LogLevel:   parseLevel(v.GetString("LOGLEVEL"), logger),
		Interval:   time.Duration(v.GetInt("REQTIME")) * time.Second,
		MAWindow:   v.GetInt("MAWINDOW"),
		NumBackups: v.GetInt("NUMBACKUPS"),
		ShowMA:     v.GetBool("SHOWMA"),
		ShowD1:     v.GetBool("SHOWD1"),
		ShowMAD1:   v.GetBool("SHOWMAD1"),
		Listen:     v.GetString("LISTEN"),
		HistoryDSN: v.GetString("HISTORY_DSN"),
		LogFile:    v.GetString("LOGFILE"),
	}

	if cfg.Interval < MinInterval {
		logger.Warn("REQTIME below minimum; kudos are not updated that fast, clamping",
			"reqtime", cfg.Interval, "min", MinInterval)
		cfg.Interval = MinInterval
	}
	if cfg.NumBackups < 0 {
		logger.Warn("NUMBACKUPS is negative, using default", "default", DefaultNumBackups)
		cfg.NumBackups = DefaultNumBackups
	}
	if cfg.MAWindow < 1 {
		logger.Warn("MAWINDOW must be at least 1, using default", "default", DefaultMAWindow)
		cfg.MAWindow = DefaultMAWindow
	}

	// The key check comes last: the clamped Config is returned even on a key
	// error, so read-only commands that never talk to the Horde can ignore it.
	if cfg.APIKey == "" {
		return cfg, ErrMissingAPIKey
	}
	if strings.EqualFold(cfg.APIKey, "foo") {
		return cfg, ErrPlaceholderAPIKey
	}
	return cfg, nil
}

func parseLevel(s string, logger *slog.Logger) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		logger.Warn("unsupported LOGLEVEL, defaulting to INFO", "loglevel", s)
		return slog.LevelInfo
	}
}
