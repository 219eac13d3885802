package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

// CommandLineArgs carries the flags parsed by the binary.
type CommandLineArgs struct {
	ConfigPath string
}

/*
my.ini layout:

[pagecache]
page_size             = 16384
max_pages             = 8192
data_dir              = data
flush_interval        = 1s
victim_search_rounds  = 256

[logs]
log_error = logs/error.log
log_infos = logs/info.log
log_level = info
*/
type Cfg struct {
	Raw *ini.File

	DataDir string

	// pagecache
	PageSize           int    `default:"16384" yaml:"page_size" json:"page_size,omitempty"`
	MaxPages           int    `default:"8192" yaml:"max_pages" json:"max_pages,omitempty"`
	FlushInterval      string `default:"0" yaml:"flush_interval" json:"flush_interval,omitempty"`
	VictimSearchRounds int    `default:"256" yaml:"victim_search_rounds" json:"victim_search_rounds,omitempty"`

	FlushIntervalDuration time.Duration

	// logs
	LogError string `default:"" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`
}

// NewCfg returns a Cfg populated with defaults.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:                ini.Empty(),
		DataDir:            "data",
		PageSize:           16384,
		MaxPages:           8192,
		FlushInterval:      "0",
		VictimSearchRounds: 256,
		LogLevel:           "info",
	}
}

// Load merges the ini file named by args into the defaults. A missing or
// empty config path keeps the defaults.
func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	if args == nil || args.ConfigPath == "" {
		cfg.finish()
		return cfg
	}

	path := args.ConfigPath
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}

	raw, err := ini.Load(path)
	if err != nil {
		fmt.Printf("failed to load config file %s: %v, using defaults\n", path, err)
		cfg.finish()
		return cfg
	}
	cfg.Raw = raw

	pc := raw.Section("pagecache")
	cfg.PageSize = pc.Key("page_size").MustInt(cfg.PageSize)
	cfg.MaxPages = pc.Key("max_pages").MustInt(cfg.MaxPages)
	cfg.DataDir = pc.Key("data_dir").MustString(cfg.DataDir)
	cfg.FlushInterval = pc.Key("flush_interval").MustString(cfg.FlushInterval)
	cfg.VictimSearchRounds = pc.Key("victim_search_rounds").MustInt(cfg.VictimSearchRounds)

	logs := raw.Section("logs")
	cfg.LogError = logs.Key("log_error").MustString(cfg.LogError)
	cfg.LogInfos = logs.Key("log_infos").MustString(cfg.LogInfos)
	cfg.LogLevel = logs.Key("log_level").MustString(cfg.LogLevel)

	cfg.finish()
	return cfg
}

// finish derives the duration fields and normalizes paths.
func (cfg *Cfg) finish() {
	if cfg.FlushInterval == "" || cfg.FlushInterval == "0" {
		cfg.FlushIntervalDuration = 0
	} else if d, err := time.ParseDuration(cfg.FlushInterval); err == nil {
		cfg.FlushIntervalDuration = d
	} else {
		fmt.Printf("invalid flush_interval %q, background flushing disabled\n", cfg.FlushInterval)
		cfg.FlushIntervalDuration = 0
	}
	cfg.DataDir = filepath.Clean(cfg.DataDir)
}
