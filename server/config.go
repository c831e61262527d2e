package server

import (
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/armon/go-metrics"
	"github.com/pressly/nativeimg"
)

type Config struct {
	Bind           string `toml:"bind"`
	MaxProcs       int    `toml:"max_procs"`
	LogLevel       string `toml:"log_level"`
	CacheMaxAge    int    `toml:"cache_max_age"`
	TmpDir         string `toml:"tmp_dir"`
	Profiler       bool   `toml:"profiler"`
	DefaultBackend string `toml:"default_backend"`

	// [limits]
	Limits struct {
		MaxRequests    int   `toml:"max_requests"`
		BacklogSize    int   `toml:"backlog_size"`
		MaxFetchers    int   `toml:"max_fetchers"`
		MaxImageSizers int   `toml:"max_image_sizers"`
		MaxCanvas      int   `toml:"max_canvas"`
		MaxBodySize    int64 `toml:"max_body_size"`
		RequestTimeout time.Duration
		BacklogTimeout time.Duration

		RequestTimeoutStr string `toml:"request_timeout"`
		BacklogTimeoutStr string `toml:"backlog_timeout"`
	} `toml:"limits"`

	// [cache]
	Cache struct {
		MemCacheSize int `toml:"mem_cache_size"`
	} `toml:"cache"`

	// [fetcher]
	Fetcher struct {
		UserAgent  string `toml:"user_agent"`
		Timeout    time.Duration
		TimeoutStr string `toml:"timeout"`
	} `toml:"fetcher"`

	// [statsd]
	StatsD struct {
		Enabled     bool   `toml:"enabled"`
		Address     string `toml:"address"`
		ServiceName string `toml:"service_name"`
	} `toml:"statsd"`
}

var (
	ErrNoConfigFile = errors.New("no configuration file specified")

	DefaultConfig = Config{}
)

func init() {
	cf := Config{
		Bind:           "0.0.0.0:4446",
		MaxProcs:       -1,
		LogLevel:       "INFO",
		CacheMaxAge:    0,
		TmpDir:         "",
		Profiler:       false,
		DefaultBackend: "pil",
	}

	cf.Limits.MaxRequests = 1000
	cf.Limits.BacklogSize = 5000
	cf.Limits.MaxFetchers = 100
	cf.Limits.MaxImageSizers = 20
	cf.Limits.MaxCanvas = 1024
	cf.Limits.MaxBodySize = 32 << 20
	cf.Limits.RequestTimeout = 45 * time.Second
	cf.Limits.BacklogTimeout = 1500 * time.Millisecond

	cf.Cache.MemCacheSize = 500

	cf.Fetcher.UserAgent = DefaultUserAgent
	cf.Fetcher.Timeout = 20 * time.Second

	cf.StatsD.ServiceName = "nativeimg"

	DefaultConfig = cf
}

func NewConfig() *Config {
	cf := DefaultConfig
	return &cf
}

func NewConfigFromFile(confFile string, confEnv string) (*Config, error) {
	var err error

	if confFile == "" {
		confFile = confEnv
	}
	if confFile == "" {
		return nil, ErrNoConfigFile
	}
	if _, err = os.Stat(confFile); os.IsNotExist(err) {
		return nil, ErrNoConfigFile
	}

	cf := NewConfig()

	if _, err = toml.DecodeFile(confFile, cf); err != nil {
		return nil, err
	}
	return cf, nil
}

func (cf *Config) Apply() (err error) {
	// runtime
	if cf.MaxProcs <= 0 {
		cf.MaxProcs = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(cf.MaxProcs)

	// logging
	if err := nativeimg.SetLogLevel(cf.LogLevel); err != nil {
		return err
	}

	// limits
	if cf.Limits.RequestTimeoutStr != "" {
		to, err := time.ParseDuration(cf.Limits.RequestTimeoutStr)
		if err != nil {
			return err
		}
		cf.Limits.RequestTimeout = to
	}
	if cf.Limits.BacklogTimeoutStr != "" {
		to, err := time.ParseDuration(cf.Limits.BacklogTimeoutStr)
		if err != nil {
			return err
		}
		cf.Limits.BacklogTimeout = to
	}
	if cf.Fetcher.TimeoutStr != "" {
		to, err := time.ParseDuration(cf.Fetcher.TimeoutStr)
		if err != nil {
			return err
		}
		cf.Fetcher.Timeout = to
	}

	return nil
}

func (cf *Config) SetupStatsD() error {
	if cf.StatsD.Enabled {
		sink, err := metrics.NewStatsdSink(cf.StatsD.Address)
		if err != nil {
			return err
		}

		config := metrics.DefaultConfig(cf.StatsD.ServiceName)
		config.EnableHostname = true
		config.EnableRuntimeMetrics = true
		config.EnableTypePrefix = false
		config.TimerGranularity = time.Millisecond
		config.ProfileInterval = 60 * time.Second
		config.HostName, _ = os.Hostname()

		if _, err := metrics.NewGlobal(config, sink); err != nil {
			return err
		}
	}
	return nil
}
