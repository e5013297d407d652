package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	State     StateConfig     `yaml:"state"`
	Journal   JournalConfig   `yaml:"journal"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type FeedConfig struct {
	URL            string              `yaml:"url"`
	ApprovalKey    string              `yaml:"approval_key"`
	RESTURL        string              `yaml:"rest_url"`
	AppKey         string              `yaml:"app_key"`
	AppSecret      string              `yaml:"app_secret"`
	RESTTimeout    time.Duration       `yaml:"rest_timeout"`
	ReconnectDelay time.Duration       `yaml:"reconnect_delay"`
	PingInterval   time.Duration       `yaml:"ping_interval"`
	QueueSize      int                 `yaml:"queue_size"`
	FuturesCode    string              `yaml:"futures_code"`
	IndexKeys      []string            `yaml:"index_keys"`
	Columns        map[string][]string `yaml:"columns"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type JournalConfig struct {
	CSVPath   string `yaml:"csv_path"`
	QueueSize int    `yaml:"queue_size"`
}

type ThresholdPhase struct {
	Start      string  `yaml:"start"`
	End        string  `yaml:"end"`
	Multiplier float64 `yaml:"multiplier"`
}

type ActiveWindow struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type StrategyConfig struct {
	BaseBasisThreshold float64          `yaml:"base_basis_threshold"`
	NetBuyThreshold    float64          `yaml:"net_buy_threshold"`
	ActiveWindow       ActiveWindow     `yaml:"active_window"`
	TrendWindow        time.Duration    `yaml:"trend_window"`
	HistoryCapacity    int              `yaml:"history_capacity"`
	Timezone           string           `yaml:"timezone"`
	ThresholdPhases    []ThresholdPhase `yaml:"threshold_phases"`
	ExitBasisFloor     float64          `yaml:"exit_basis_floor"`
	ExitBasisRatio     float64          `yaml:"exit_basis_ratio"`
	ExitNetBuyRatio    float64          `yaml:"exit_net_buy_ratio"`
	BasisTrID          string           `yaml:"basis_tr_id"`
	BasisField         string           `yaml:"basis_field"`
	NetBuyTrID         string           `yaml:"net_buy_tr_id"`
	NetBuyField        string           `yaml:"net_buy_field"`
	TimeField          string           `yaml:"time_field"`
}

type RiskConfig struct {
	MaxHold        time.Duration `yaml:"max_hold"`
	LossLimit      int           `yaml:"loss_limit"`
	EmergencyBasis *float64      `yaml:"emergency_basis"`
	StopOnHalt     bool          `yaml:"stop_on_halt"`
}

// EmergencyBasisValue returns the configured stop-loss basis, or -0.05 when unset.
func (r RiskConfig) EmergencyBasisValue() float64 {
	if r.EmergencyBasis == nil {
		return defaultEmergencyBasis
	}
	return *r.EmergencyBasis
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	QueueSize              int           `yaml:"queue_size"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled == nil || *m.Enabled
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

const defaultEmergencyBasis = -0.05

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 50
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 14
		}
	}
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "ws://ops.koreainvestment.com:21000/tryitout"
	}
	if cfg.Feed.RESTURL == "" {
		cfg.Feed.RESTURL = "https://openapi.koreainvestment.com:9443"
	}
	if cfg.Feed.RESTTimeout == 0 {
		cfg.Feed.RESTTimeout = 10 * time.Second
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.QueueSize == 0 {
		cfg.Feed.QueueSize = 1024
	}
	if cfg.Feed.FuturesCode == "" {
		cfg.Feed.FuturesCode = "101S12"
	}
	if len(cfg.Feed.IndexKeys) == 0 {
		cfg.Feed.IndexKeys = []string{"0001"}
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/basis-arb-bot.db"
	}
	if cfg.Journal.CSVPath == "" {
		cfg.Journal.CSVPath = "data/trades.csv"
	}
	if cfg.Journal.QueueSize == 0 {
		cfg.Journal.QueueSize = 256
	}
	applyStrategyDefaults(&cfg.Strategy)
	if cfg.Risk.MaxHold == 0 {
		cfg.Risk.MaxHold = 90 * time.Minute
	}
	if cfg.Risk.LossLimit == 0 {
		cfg.Risk.LossLimit = 2
	}
	if cfg.Telegram.QueueSize == 0 {
		cfg.Telegram.QueueSize = 64
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = 60 * time.Second
	}
}

func applyStrategyDefaults(s *StrategyConfig) {
	if s.BaseBasisThreshold == 0 {
		s.BaseBasisThreshold = 0.20
	}
	if s.NetBuyThreshold == 0 {
		s.NetBuyThreshold = 1500
	}
	if s.ActiveWindow.Start == "" {
		s.ActiveWindow.Start = "09:00"
	}
	if s.ActiveWindow.End == "" {
		s.ActiveWindow.End = "10:30"
	}
	if s.TrendWindow == 0 {
		s.TrendWindow = 3 * time.Minute
	}
	if s.HistoryCapacity == 0 {
		s.HistoryCapacity = 600
	}
	if s.Timezone == "" {
		s.Timezone = "Asia/Seoul"
	}
	if s.ThresholdPhases == nil {
		s.ThresholdPhases = []ThresholdPhase{
			{Start: "09:00", End: "09:30", Multiplier: 1.3},
			{Start: "09:30", End: "10:00", Multiplier: 1.1},
		}
	}
	if s.ExitBasisFloor == 0 {
		s.ExitBasisFloor = 0.05
	}
	if s.ExitBasisRatio == 0 {
		s.ExitBasisRatio = 0.7
	}
	if s.ExitNetBuyRatio == 0 {
		s.ExitNetBuyRatio = 0.6
	}
	if s.BasisTrID == "" {
		s.BasisTrID = "H0IFCNT0"
	}
	if s.BasisField == "" {
		s.BasisField = "mrkt_basis"
	}
	if s.NetBuyTrID == "" {
		s.NetBuyTrID = "H0UPPGM0"
	}
	if s.NetBuyField == "" {
		s.NetBuyField = "nabt_smtn_ntby_qty"
	}
	if s.TimeField == "" {
		s.TimeField = "bsop_hour"
	}
}

func applyEnvOverrides(cfg *Config) error {
	if token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if key := strings.TrimSpace(os.Getenv("KIS_APPROVAL_KEY")); key != "" {
		cfg.Feed.ApprovalKey = key
	}
	if key := strings.TrimSpace(os.Getenv("KIS_APP_KEY")); key != "" {
		cfg.Feed.AppKey = key
	}
	if secret := strings.TrimSpace(os.Getenv("KIS_APP_SECRET")); secret != "" {
		cfg.Feed.AppSecret = secret
	}
	if code := strings.TrimSpace(os.Getenv("FUT_CODE")); code != "" {
		cfg.Feed.FuturesCode = code
	}
	if raw := strings.TrimSpace(os.Getenv("INDEX_KEYS")); raw != "" {
		var keys []string
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
		if len(keys) > 0 {
			cfg.Feed.IndexKeys = keys
		}
	}
	if raw := strings.TrimSpace(os.Getenv("BASIS_TH")); raw != "" {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("BASIS_TH: %w", err)
		}
		cfg.Strategy.BaseBasisThreshold = val
	}
	if raw := strings.TrimSpace(os.Getenv("NABT_NTBY_TH")); raw != "" {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("NABT_NTBY_TH: %w", err)
		}
		cfg.Strategy.NetBuyThreshold = val
	}
	return nil
}

func validate(cfg *Config) error {
	s := cfg.Strategy
	if s.BaseBasisThreshold <= 0 {
		return errors.New("strategy.base_basis_threshold must be > 0")
	}
	if s.NetBuyThreshold < 0 {
		return errors.New("strategy.net_buy_threshold must be >= 0")
	}
	start, err := ParseClock(s.ActiveWindow.Start)
	if err != nil {
		return fmt.Errorf("strategy.active_window.start: %w", err)
	}
	end, err := ParseClock(s.ActiveWindow.End)
	if err != nil {
		return fmt.Errorf("strategy.active_window.end: %w", err)
	}
	if end <= start {
		return errors.New("strategy.active_window.end must be after start")
	}
	if s.TrendWindow < 0 {
		return errors.New("strategy.trend_window must be >= 0")
	}
	if s.HistoryCapacity < 2 {
		return errors.New("strategy.history_capacity must be >= 2")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("strategy.timezone: %w", err)
	}
	for i, phase := range s.ThresholdPhases {
		ps, err := ParseClock(phase.Start)
		if err != nil {
			return fmt.Errorf("strategy.threshold_phases[%d].start: %w", i, err)
		}
		pe, err := ParseClock(phase.End)
		if err != nil {
			return fmt.Errorf("strategy.threshold_phases[%d].end: %w", i, err)
		}
		if pe <= ps {
			return fmt.Errorf("strategy.threshold_phases[%d] end must be after start", i)
		}
		if phase.Multiplier <= 0 {
			return fmt.Errorf("strategy.threshold_phases[%d].multiplier must be > 0", i)
		}
	}
	if s.ExitBasisFloor < 0 || s.ExitBasisRatio < 0 || s.ExitNetBuyRatio < 0 {
		return errors.New("strategy exit settings must be >= 0")
	}
	if cfg.Risk.MaxHold < 0 {
		return errors.New("risk.max_hold must be >= 0")
	}
	if cfg.Risk.LossLimit < 1 {
		return errors.New("risk.loss_limit must be >= 1")
	}
	if cfg.Feed.ReconnectDelay < 0 || cfg.Feed.PingInterval < 0 || cfg.Feed.RESTTimeout < 0 {
		return errors.New("feed intervals must be >= 0")
	}
	if cfg.Heartbeat.Interval < 0 {
		return errors.New("heartbeat.interval must be >= 0")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// ParseClock parses "HH:MM" or "HHMM" into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	raw = strings.ReplaceAll(raw, ":", "")
	if len(raw) != 4 {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	hh, err := strconv.Atoi(raw[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	mm, err := strconv.Atoi(raw[2:])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("clock time %q out of range", value)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
