// Package sentinelconfig loads a sentinel.Config from a TOML or YAML
// file with environment-variable overrides layered on top: every
// field has a documented default, a file can override it, and an
// environment variable always wins.
package sentinelconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/registry"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/sentinel"
)

// file is the on-disk representation of sentinel.Config. Fields use
// plain strings for enum-like values (drift level) so both the TOML
// and YAML decoders can populate them without custom UnmarshalTOML/
// UnmarshalYAML hooks on the sentinel package's own types.
type file struct {
	Registry struct {
		DBPath            string `toml:"db_path" yaml:"db_path"`
		AllowUnknownTools bool   `toml:"allow_unknown_tools" yaml:"allow_unknown_tools"`
		MaxAllowedDrift   string `toml:"max_allowed_drift" yaml:"max_allowed_drift"`
	} `toml:"registry" yaml:"registry"`

	Monitor struct {
		GasLimit       uint64 `toml:"gas_limit" yaml:"gas_limit"`
		MaxContextSize int    `toml:"max_context_size" yaml:"max_context_size"`
		MaxDepth       int    `toml:"max_depth" yaml:"max_depth"`
		DetectCycles   bool   `toml:"detect_cycles" yaml:"detect_cycles"`
		AutoFlush      bool   `toml:"auto_flush" yaml:"auto_flush"`
		FlushCount     int    `toml:"flush_count" yaml:"flush_count"`
	} `toml:"monitor" yaml:"monitor"`

	Council struct {
		MinVotesForApproval int     `toml:"min_votes_for_approval" yaml:"min_votes_for_approval"`
		WaluigiThreshold    float64 `toml:"waluigi_threshold" yaml:"waluigi_threshold"`
		DetectWaluigi       bool    `toml:"detect_waluigi" yaml:"detect_waluigi"`
	} `toml:"council" yaml:"council"`

	Firewall struct {
		EntropyThreshold float64 `toml:"entropy_threshold" yaml:"entropy_threshold"`
		BlockHighEntropy bool    `toml:"block_high_entropy" yaml:"block_high_entropy"`
		BlockPatterns    bool    `toml:"block_patterns" yaml:"block_patterns"`
		BlockThreshold   float64 `toml:"block_threshold" yaml:"block_threshold"`
	} `toml:"firewall" yaml:"firewall"`

	Global struct {
		FailClosed   bool `toml:"fail_closed" yaml:"fail_closed"`
		AuditLogging bool `toml:"audit_logging" yaml:"audit_logging"`
		ShortCircuit bool `toml:"short_circuit" yaml:"short_circuit"`
	} `toml:"global" yaml:"global"`

	// Server holds CLI/daemon concerns with no analogue in
	// sentinel.Config itself.
	Server struct {
		ListenAddr      string        `toml:"listen_addr" yaml:"listen_addr"`
		MetricsAddr     string        `toml:"metrics_addr" yaml:"metrics_addr"`
		ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `toml:"server" yaml:"server"`
}

func defaultFile() file {
	var f file
	d := sentinel.DefaultConfig()
	f.Registry.DBPath = d.Registry.DBPath
	f.Registry.AllowUnknownTools = d.Registry.AllowUnknownTools
	f.Registry.MaxAllowedDrift = driftLevelString(d.Registry.MaxAllowedDrift)
	f.Monitor.GasLimit = d.Monitor.GasLimit
	f.Monitor.MaxContextSize = d.Monitor.MaxContextSize
	f.Monitor.MaxDepth = d.Monitor.MaxDepth
	f.Monitor.DetectCycles = d.Monitor.DetectCycles
	f.Monitor.AutoFlush = d.Monitor.AutoFlush
	f.Monitor.FlushCount = d.Monitor.FlushCount
	f.Council.MinVotesForApproval = d.Council.MinVotesForApproval
	f.Council.WaluigiThreshold = d.Council.WaluigiThreshold
	f.Council.DetectWaluigi = d.Council.DetectWaluigi
	f.Firewall.EntropyThreshold = d.Firewall.EntropyThreshold
	f.Firewall.BlockHighEntropy = d.Firewall.BlockHighEntropy
	f.Firewall.BlockPatterns = d.Firewall.BlockPatterns
	f.Firewall.BlockThreshold = d.Firewall.BlockThreshold
	f.Global.FailClosed = d.Global.FailClosed
	f.Global.AuditLogging = d.Global.AuditLogging
	f.Global.ShortCircuit = d.Global.ShortCircuit
	f.Server.ListenAddr = ":8443"
	f.Server.MetricsAddr = ":9090"
	f.Server.ShutdownTimeout = 10 * time.Second
	return f
}

// ServerConfig is the CLI/daemon-level configuration with no analogue
// in sentinel.Config.
type ServerConfig struct {
	ListenAddr      string
	MetricsAddr     string
	ShutdownTimeout time.Duration
}

// Loaded bundles the parsed sentinel.Config with the server-level
// settings a single YAML/TOML file also carries.
type Loaded struct {
	Sentinel sentinel.Config
	Server   ServerConfig
}

// Load reads path (TOML or YAML, selected by extension: .yaml/.yml use
// YAML, anything else is parsed as TOML) layered over the package
// defaults, then applies SENTINEL_* environment variable overrides.
// An empty path skips the file step and returns pure defaults plus
// environment overrides.
func Load(path string) (Loaded, error) {
	f := defaultFile()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, fmt.Errorf("sentinelconfig: reading %s: %w", path, err)
		}
		if isYAML(path) {
			if err := yaml.Unmarshal(data, &f); err != nil {
				return Loaded{}, fmt.Errorf("sentinelconfig: parsing YAML %s: %w", path, err)
			}
		} else {
			if err := toml.Unmarshal(data, &f); err != nil {
				return Loaded{}, fmt.Errorf("sentinelconfig: parsing TOML %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&f)

	drift, err := parseDriftLevel(f.Registry.MaxAllowedDrift)
	if err != nil {
		return Loaded{}, fmt.Errorf("sentinelconfig: %w", err)
	}

	return Loaded{
		Sentinel: sentinel.Config{
			Registry: sentinel.RegistryConfig{
				DBPath:            f.Registry.DBPath,
				AllowUnknownTools: f.Registry.AllowUnknownTools,
				MaxAllowedDrift:   drift,
			},
			Monitor: sentinel.MonitorConfig{
				GasLimit:       f.Monitor.GasLimit,
				MaxContextSize: f.Monitor.MaxContextSize,
				MaxDepth:       f.Monitor.MaxDepth,
				DetectCycles:   f.Monitor.DetectCycles,
				AutoFlush:      f.Monitor.AutoFlush,
				FlushCount:     f.Monitor.FlushCount,
			},
			Council: sentinel.CouncilConfig{
				MinVotesForApproval: f.Council.MinVotesForApproval,
				WaluigiThreshold:    f.Council.WaluigiThreshold,
				DetectWaluigi:       f.Council.DetectWaluigi,
			},
			Firewall: sentinel.FirewallConfig{
				EntropyThreshold: f.Firewall.EntropyThreshold,
				BlockHighEntropy: f.Firewall.BlockHighEntropy,
				BlockPatterns:    f.Firewall.BlockPatterns,
				BlockThreshold:   f.Firewall.BlockThreshold,
			},
			Global: sentinel.GlobalConfig{
				FailClosed:   f.Global.FailClosed,
				AuditLogging: f.Global.AuditLogging,
				ShortCircuit: f.Global.ShortCircuit,
			},
		},
		Server: ServerConfig{
			ListenAddr:      f.Server.ListenAddr,
			MetricsAddr:     f.Server.MetricsAddr,
			ShutdownTimeout: f.Server.ShutdownTimeout,
		},
	}, nil
}

// Validate aggregates every configuration violation into one error:
// collect every problem, then return them joined, rather than failing
// on the first so an operator fixes a bad file in one pass.
func (l Loaded) Validate() error {
	var errs []string

	if l.Sentinel.Monitor.GasLimit == 0 {
		errs = append(errs, "monitor.gas_limit must be greater than zero")
	}
	if l.Sentinel.Monitor.MaxContextSize <= 0 {
		errs = append(errs, "monitor.max_context_size must be greater than zero")
	}
	if l.Sentinel.Monitor.MaxDepth <= 0 {
		errs = append(errs, "monitor.max_depth must be greater than zero")
	}
	if l.Sentinel.Monitor.AutoFlush && l.Sentinel.Monitor.FlushCount <= 0 {
		errs = append(errs, "monitor.flush_count must be greater than zero when auto_flush is enabled")
	}

	if l.Sentinel.Council.MinVotesForApproval < 1 {
		errs = append(errs, "council.min_votes_for_approval must be at least 1")
	}
	if l.Sentinel.Council.WaluigiThreshold < 0 || l.Sentinel.Council.WaluigiThreshold > 1 {
		errs = append(errs, "council.waluigi_threshold must be within [0, 1]")
	}

	if l.Sentinel.Firewall.EntropyThreshold <= 0 {
		errs = append(errs, "firewall.entropy_threshold must be greater than zero")
	}
	if l.Sentinel.Firewall.BlockThreshold < 0 || l.Sentinel.Firewall.BlockThreshold > 1 {
		errs = append(errs, "firewall.block_threshold must be within [0, 1]")
	}

	if l.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr is required but not set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func driftLevelString(l registry.DriftLevel) string {
	switch l {
	case registry.DriftNone:
		return "none"
	case registry.DriftMinor:
		return "minor"
	case registry.DriftMajor:
		return "major"
	case registry.DriftCritical:
		return "critical"
	default:
		return "minor"
	}
}

func parseDriftLevel(s string) (registry.DriftLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return registry.DriftNone, nil
	case "minor", "":
		return registry.DriftMinor, nil
	case "major":
		return registry.DriftMajor, nil
	case "critical":
		return registry.DriftCritical, nil
	default:
		return 0, fmt.Errorf("unrecognized drift level %q (want none, minor, major, or critical)", s)
	}
}

// applyEnvOverrides applies each SENTINEL_* variable, if set, over
// whatever the file (or default) provided.
func applyEnvOverrides(f *file) {
	getEnv(&f.Registry.DBPath, "SENTINEL_REGISTRY_DB_PATH")
	getEnvBool(&f.Registry.AllowUnknownTools, "SENTINEL_REGISTRY_ALLOW_UNKNOWN_TOOLS")
	getEnv(&f.Registry.MaxAllowedDrift, "SENTINEL_REGISTRY_MAX_ALLOWED_DRIFT")

	getEnvUint64(&f.Monitor.GasLimit, "SENTINEL_MONITOR_GAS_LIMIT")
	getEnvInt(&f.Monitor.MaxContextSize, "SENTINEL_MONITOR_MAX_CONTEXT_SIZE")
	getEnvInt(&f.Monitor.MaxDepth, "SENTINEL_MONITOR_MAX_DEPTH")
	getEnvBool(&f.Monitor.DetectCycles, "SENTINEL_MONITOR_DETECT_CYCLES")
	getEnvBool(&f.Monitor.AutoFlush, "SENTINEL_MONITOR_AUTO_FLUSH")
	getEnvInt(&f.Monitor.FlushCount, "SENTINEL_MONITOR_FLUSH_COUNT")

	getEnvInt(&f.Council.MinVotesForApproval, "SENTINEL_COUNCIL_MIN_VOTES_FOR_APPROVAL")
	getEnvFloat(&f.Council.WaluigiThreshold, "SENTINEL_COUNCIL_WALUIGI_THRESHOLD")
	getEnvBool(&f.Council.DetectWaluigi, "SENTINEL_COUNCIL_DETECT_WALUIGI")

	getEnvFloat(&f.Firewall.EntropyThreshold, "SENTINEL_FIREWALL_ENTROPY_THRESHOLD")
	getEnvBool(&f.Firewall.BlockHighEntropy, "SENTINEL_FIREWALL_BLOCK_HIGH_ENTROPY")
	getEnvBool(&f.Firewall.BlockPatterns, "SENTINEL_FIREWALL_BLOCK_PATTERNS")
	getEnvFloat(&f.Firewall.BlockThreshold, "SENTINEL_FIREWALL_BLOCK_THRESHOLD")

	getEnvBool(&f.Global.FailClosed, "SENTINEL_GLOBAL_FAIL_CLOSED")
	getEnvBool(&f.Global.AuditLogging, "SENTINEL_GLOBAL_AUDIT_LOGGING")
	getEnvBool(&f.Global.ShortCircuit, "SENTINEL_GLOBAL_SHORT_CIRCUIT")

	getEnv(&f.Server.ListenAddr, "SENTINEL_LISTEN_ADDR")
	getEnv(&f.Server.MetricsAddr, "SENTINEL_METRICS_ADDR")
	getEnvDuration(&f.Server.ShutdownTimeout, "SENTINEL_SHUTDOWN_TIMEOUT")
}

func getEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getEnvBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func getEnvInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func getEnvUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func getEnvFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}

func getEnvDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
