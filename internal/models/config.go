package models

// Config is the parsed migration configuration (mlflow-export-import.yaml or .toml).
type Config struct {
	LogLevel string         `yaml:"log_level,omitempty" toml:"log_level" json:"log_level,omitempty" env:"MLFLOW_EXPORT_IMPORT_LOG_LEVEL"`
	Tracking TrackingConfig `yaml:"tracking" toml:"tracking" json:"tracking"`
	Export   ExportConfig   `yaml:"export" toml:"export" json:"export"`
	Import   ImportConfig   `yaml:"import" toml:"import" json:"import"`
}

// TrackingConfig locates and authenticates against a tracking server.
type TrackingConfig struct {
	URI        string  `yaml:"uri" toml:"uri" json:"uri" env:"MLFLOW_TRACKING_URI"`
	Token      string  `yaml:"token,omitempty" toml:"token" json:"-" env:"MLFLOW_TRACKING_TOKEN"`
	Username   string  `yaml:"username,omitempty" toml:"username" json:"username,omitempty" env:"MLFLOW_TRACKING_USERNAME"`
	Password   string  `yaml:"password,omitempty" toml:"password" json:"-" env:"MLFLOW_TRACKING_PASSWORD"`
	TimeoutSec float64 `yaml:"timeout_sec" toml:"timeout_sec" json:"timeout_sec" env:"MLFLOW_HTTP_REQUEST_TIMEOUT"`
	PageSize   int     `yaml:"page_size" toml:"page_size" json:"page_size" env:"MLFLOW_EXPORT_IMPORT_PAGE_SIZE"`
}

type ExportConfig struct {
	Threads    int  `yaml:"threads" toml:"threads" json:"threads" env:"MLFLOW_EXPORT_THREADS"`
	UseThreads bool `yaml:"use_threads" toml:"use_threads" json:"use_threads"`
}

type ImportConfig struct {
	PollIntervalSec float64  `yaml:"poll_interval_sec" toml:"poll_interval_sec" json:"poll_interval_sec" env:"MLFLOW_IMPORT_POLL_INTERVAL"`
	ReadyTimeoutSec float64  `yaml:"ready_timeout_sec" toml:"ready_timeout_sec" json:"ready_timeout_sec" env:"MLFLOW_IMPORT_READY_TIMEOUT"`
	NoneStage       string   `yaml:"none_stage" toml:"none_stage" json:"none_stage" env:"MLFLOW_IMPORT_NONE_STAGE"`
	RemoteSchemes   []string `yaml:"remote_schemes,omitempty" toml:"remote_schemes" json:"remote_schemes,omitempty" env:"MLFLOW_IMPORT_REMOTE_SCHEMES" envSeparator:","`

	// Deprecated: use PollIntervalSec.
	SleepTime float64 `yaml:"sleep_time,omitempty" toml:"sleep_time" json:"-"`
}
