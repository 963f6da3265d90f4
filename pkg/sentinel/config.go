package sentinel

import (
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/firewall"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/registry"
)

// RegistryConfig parameterises the schema registry phase of the
// pipeline: where schemas persist and how much drift is tolerated
// before a hash mismatch escalates to a hard Block.
type RegistryConfig struct {
	DBPath            string
	AllowUnknownTools bool
	MaxAllowedDrift   registry.DriftLevel
}

// DefaultRegistryConfig keeps unknown tools out by default (fail
// closed) and tolerates only Minor drift before blocking.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		DBPath:            "",
		AllowUnknownTools: false,
		MaxAllowedDrift:   registry.DriftMinor,
	}
}

// MonitorConfig parameterises the execution-state monitor phase.
type MonitorConfig struct {
	GasLimit       uint64
	MaxContextSize int
	MaxDepth       int
	DetectCycles   bool

	// AutoFlush evicts the FlushCount oldest context frames, whatever
	// their priority, instead of failing once the frame store
	// (MaxContextSize/1024 frames) is more than 80% full at the start of
	// a step. Disable it to make that condition a hard
	// Block{ContextOverflow} instead.
	AutoFlush  bool
	FlushCount int
}

// DefaultMonitorConfig mirrors the monitor package's own defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		GasLimit:       10_000,
		MaxContextSize: 1_000_000,
		MaxDepth:       100,
		DetectCycles:   true,
		AutoFlush:      true,
		FlushCount:     100,
	}
}

// CouncilConfig parameterises the cognitive council phase.
type CouncilConfig struct {
	MinVotesForApproval int
	WaluigiThreshold    float64
	DetectWaluigi       bool
}

// DefaultCouncilConfig requires a 2-vote minimum and vetoes responses
// scoring at or above 0.7 on the Waluigi scale.
func DefaultCouncilConfig() CouncilConfig {
	return CouncilConfig{
		MinVotesForApproval: 2,
		WaluigiThreshold:    0.7,
		DetectWaluigi:       true,
	}
}

// GlobalConfig carries pipeline-wide policy that is not specific to
// any one subsystem.
type GlobalConfig struct {
	FailClosed   bool
	AuditLogging bool
	ShortCircuit bool
}

// DefaultGlobalConfig fails closed, logs every verdict, and
// short-circuits the pipeline on the first Block.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		FailClosed:   true,
		AuditLogging: true,
		ShortCircuit: true,
	}
}

// FirewallConfig parameterises the companion semantic firewall. It is
// not consulted by AnalyzeToolCall — the firewall plays no part in
// tool-schema verification; callers invoke ScanPrompt and ScanOutput
// directly when inspecting free text.
type FirewallConfig = firewall.Config

// DefaultFirewallConfig defers to the firewall package's own defaults.
func DefaultFirewallConfig() FirewallConfig { return firewall.DefaultConfig() }

// Config is the facade's complete configuration, composed of its
// four subsystem sections plus the companion firewall.
type Config struct {
	Registry RegistryConfig
	Monitor  MonitorConfig
	Council  CouncilConfig
	Firewall FirewallConfig
	Global   GlobalConfig
}

// DefaultConfig returns a Config built from each subsystem's own
// defaults.
func DefaultConfig() Config {
	return Config{
		Registry: DefaultRegistryConfig(),
		Monitor:  DefaultMonitorConfig(),
		Council:  DefaultCouncilConfig(),
		Firewall: DefaultFirewallConfig(),
		Global:   DefaultGlobalConfig(),
	}
}
