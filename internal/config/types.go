package config

// Config is the on-disk daemon configuration (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "15s", "10m").
// Omitted fields keep the values from Default.
type Config struct {
	// ActivityTimeout exits the daemon after this long without D-Bus calls
	// and with nothing on screen. "0s" disables it.
	ActivityTimeout string `json:"activity_timeout"`
	// PopupTimeout applies to notifications asking for the server default (-1).
	PopupTimeout string `json:"popup_timeout"`
	// PollInterval is the re-check cadence for plugged queues and the filter file.
	PollInterval string `json:"poll_interval"`
	QueueLen     int    `json:"queue_len"`
	HistoryLen   int    `json:"history_len"`

	TBF TBFConfig `json:"tbf"`

	UrgencyCheck bool             `json:"urgency_check"`
	Fullscreen   FullscreenConfig `json:"fullscreen"`
	StatusNotify bool             `json:"status_notify"`
	Cleanup      bool             `json:"cleanup"`
	FilterFile   string           `json:"filter_file"`

	Relay    RelayConfig    `json:"relay"`
	Notelog  NotelogConfig  `json:"notelog"`
	Logging  LoggingConfig  `json:"logging"`
	Pprof    PprofConfig    `json:"pprof"`
	Schedule []ScheduleRule `json:"schedule,omitempty"`
}

// TBFConfig configures the token-bucket message-flow filter.
type TBFConfig struct {
	Size     int    `json:"size"`      // bucket capacity
	Tick     string `json:"tick"`      // one token per tick
	MaxDelay string `json:"max_delay"` // upper bound for the stretched tick
	Inc      int    `json:"inc"`       // tick multiplier on sustained overflow
	Dec      int    `json:"dec"`       // tick divider on recovery
}

type FullscreenConfig struct {
	Check bool `json:"check"`
	// Command exits 0 when the active window is fullscreen. Empty means never.
	Command string `json:"command,omitempty"`
}

// RelayConfig enables forwarding notifications between daemons.
//
// Example:
//
//	relay:
//	  driver: zmq
//	  pub_bind: ["[::]:5678"]
//	  sub_connect: ["desktop.lan:5678"]
type RelayConfig struct {
	Driver     string   `json:"driver,omitempty"` // "", zmq, redis
	Hostname   string   `json:"hostname,omitempty"`
	PubBind    []string `json:"pub_bind,omitempty"`
	PubConnect []string `json:"pub_connect,omitempty"`
	SubBind    []string `json:"sub_bind,omitempty"`
	SubConnect []string `json:"sub_connect,omitempty"`
	RedisAddr  string   `json:"redis_addr,omitempty"`
	Channel    string   `json:"channel,omitempty"`
	Buffer     int      `json:"buffer"`
	MaxRate    float64  `json:"max_rate"` // inbound messages per second
}

type NotelogConfig struct {
	Driver  string `json:"driver,omitempty"` // "", file, sqlite
	Path    string `json:"path,omitempty"`
	Backups int    `json:"backups"`
	MaxSize int64  `json:"max_size"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PprofConfig controls the optional pprof HTTP listener. Rates apply even
// when the listener is off.
type PprofConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address,omitempty"` // default 127.0.0.1:6060
	BlockProfileRate     int    `json:"block_profile_rate"`
	MutexProfileFraction int    `json:"mutex_profile_fraction"`
}

// ScheduleRule applies Set parameters on a cron schedule, e.g. quiet hours:
//
//	schedule:
//	  - cron: "0 22 * * *"
//	    set: {plug: true}
//	  - cron: "0 8 * * *"
//	    set: {plug: false}
type ScheduleRule struct {
	Cron string          `json:"cron"`
	Set  map[string]bool `json:"set"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ActivityTimeout: "10m",
		PopupTimeout:    "5s",
		PollInterval:    "60s",
		QueueLen:        10,
		HistoryLen:      20,
		TBF: TBFConfig{
			Size:     4,
			Tick:     "15s",
			MaxDelay: "60s",
			Inc:      2,
			Dec:      2,
		},
		UrgencyCheck: true,
		Fullscreen:   FullscreenConfig{Check: true},
		StatusNotify: true,
		Cleanup:      true,
		FilterFile:   "~/.notification_filter",
		Relay:        RelayConfig{Buffer: 30, MaxRate: 10},
		Notelog:      NotelogConfig{Backups: 3, MaxSize: 1 << 20},
		Logging:      LoggingConfig{Level: "info", Console: true},
	}
}
