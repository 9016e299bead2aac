package core

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the daemon-wide configuration, loaded from an optional YAML
// file (the teacher's fw/cmd/cmd.go does the same with toolutils.ReadYaml)
// and then overridden by the CCND_* environment variables of spec.md §6 so
// the daemon behaves like the original ccnd regardless of which layer set
// a value.
type Config struct {
	Core CoreConfig `yaml:"core"`
	CS   CSConfig   `yaml:"cs"`
	Face FaceConfig `yaml:"face"`
}

type CoreConfig struct {
	BaseDir      string `yaml:"-"`
	LogLevel     string `yaml:"log_level"`
	CpuProfile   string `yaml:"cpu_profile"`
	MemProfile   string `yaml:"mem_profile"`
	BlockProfile string `yaml:"block_profile"`

	// UnixSocketPath is the local-domain socket path (spec.md §6).
	UnixSocketPath string `yaml:"unix_socket_path"`
	// ListenOn is the set of addresses the daemon opens a TCP listener on;
	// no UDP listener is bound.
	ListenOn []string `yaml:"listen_on"`
	// Port is the port of every ListenOn TCP listener.
	Port uint16 `yaml:"port"`
	// Autoreg lists CCN URIs that Daemon.Start registers once at startup,
	// each on its own permanent null face; faces enrolled later do not get
	// these prefixes registered on them.
	Autoreg []string `yaml:"autoreg"`
}

type CSConfig struct {
	// Cap is the soft capacity (CCND_CAP).
	Cap int `yaml:"cap"`
	// DefaultTimeToStale/MaxTimeToStale are freshness caps in seconds.
	DefaultTimeToStale int `yaml:"default_time_to_stale"`
	MaxTimeToStale     int `yaml:"max_time_to_stale"`
}

type FaceConfig struct {
	// MTU decides whether stuffed Interests may be coalesced with outgoing Content.
	MTU int `yaml:"mtu"`
	// DataPauseMicrosec is the base multicast SendQueue delay.
	DataPauseMicrosec int `yaml:"data_pause_microsec"`
	// MaxRteMicrosec clamps the predicted response time estimate.
	MaxRteMicrosec int `yaml:"max_rte_microsec"`
}

// DefaultConfig mirrors the values the original ccnd falls back to when no
// environment variable or file overrides them.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			LogLevel:       "INFO",
			UnixSocketPath: "/tmp/.ccnd.sock",
			Port:           6363,
		},
		CS: CSConfig{
			Cap:                65536,
			DefaultTimeToStale: 30,
			MaxTimeToStale:     2000000000,
		},
		Face: FaceConfig{
			MTU:               8800,
			DataPauseMicrosec: 2000,
			MaxRteMicrosec:    1000000,
		},
	}
}

// ReadYaml loads YAML config into cfg from the given path, matching
// toolutils.ReadYaml's contract in the teacher daemon.
func ReadYaml(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

var splitEnvList = regexp.MustCompile(`[\s,;]+`)

// ApplyEnv overrides cfg with the CCND_* environment variables named in
// spec.md §6. Environment variables always win over the YAML file, matching
// the original ccnd's precedence (env vars are read at process start and
// are meant for operational overrides).
func (cfg *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("CCND_DEBUG"); ok {
		if mask, err := strconv.ParseInt(v, 0, 64); err == nil {
			cfg.Core.LogLevel = debugMaskToLevel(mask)
		}
	}
	if v, ok := os.LookupEnv("CCND_CAP"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CS.Cap = n
		}
	}
	if v, ok := os.LookupEnv("CCND_MTU"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Face.MTU = n
		}
	}
	if v, ok := os.LookupEnv("CCND_DATA_PAUSE_MICROSEC"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Face.DataPauseMicrosec = n
		}
	}
	if v, ok := os.LookupEnv("CCND_DEFAULT_TIME_TO_STALE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CS.DefaultTimeToStale = n
		}
	}
	if v, ok := os.LookupEnv("CCND_MAX_TIME_TO_STALE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CS.MaxTimeToStale = n
		}
	}
	if v, ok := os.LookupEnv("CCND_MAX_RTE_MICROSEC"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Face.MaxRteMicrosec = n
		}
	}
	if v, ok := os.LookupEnv("CCND_AUTOREG"); ok && strings.TrimSpace(v) != "" {
		cfg.Core.Autoreg = splitEnvList.Split(strings.TrimSpace(v), -1)
	}
	if v, ok := os.LookupEnv("CCND_LISTEN_ON"); ok && strings.TrimSpace(v) != "" {
		cfg.Core.ListenOn = splitEnvList.Split(strings.TrimSpace(v), -1)
	}
}

// debugMaskToLevel maps the original ccnd's CCND_DEBUG bitmask onto our
// coarser log.Level scale: any bit set raises verbosity.
func debugMaskToLevel(mask int64) string {
	switch {
	case mask == 0:
		return "INFO"
	case mask&0x1 != 0:
		return "TRACE"
	default:
		return "DEBUG"
	}
}

// StaleBound clamps a requested freshness/staleness duration into
// [DefaultTimeToStale, MaxTimeToStale] seconds, per CCND_DEFAULT_TIME_TO_STALE
// / CCND_MAX_TIME_TO_STALE.
func (c CSConfig) StaleBound(requested time.Duration) time.Duration {
	lo := time.Duration(c.DefaultTimeToStale) * time.Second
	hi := time.Duration(c.MaxTimeToStale) * time.Second
	if requested < lo {
		return lo
	}
	if requested > hi {
		return hi
	}
	return requested
}
