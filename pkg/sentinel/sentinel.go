package sentinel

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/council"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/firewall"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/logging"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/monitor"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/registry"
)

// Sentinel is the unified facade: a single ordered pipeline over the
// schema registry, the execution-state monitor, and the cognitive
// council, producing one top-level Verdict per tool call.
//
// Ordering within one instance is fixed: Registry, then Monitor, then
// Council, short-circuiting on the first Block unless
// global.short_circuit is disabled (in which case later phases still
// run, but the first Block found is what the call returns). Not safe for
// concurrent use by multiple goroutines; callers needing concurrency
// run one Sentinel per request or serialise access themselves.
type Sentinel struct {
	config   Config
	registry *registry.Guard
	monitor  *monitor.Monitor
	council  *council.Council
	firewall *firewall.Firewall
	logger   *logging.Logger
	metrics  MetricsSink

	// evictedSeen is the last ContextEvictedTotal observed, so
	// ObserveContextEviction can be fed the per-call delta rather than
	// the running total.
	evictedSeen uint64
}

// MetricsSink receives per-call telemetry, if one is configured with
// WithMetrics. pkg/metrics.Metrics satisfies this structurally, so
// pkg/sentinel never imports the prometheus client directly —
// telemetry is an optional collaborator wired in by cmd/sentinel.
type MetricsSink interface {
	ObserveVerdict(kind string, reasonLabel string, flagLabels []string)
	ObserveGasUtilization(ratio float64)
	ObserveDrift(level string)
	ObserveFirewall(outcome, surface string)
	ObserveContextEviction(n int)
	ObserveMonitorHalt()
}

// Option configures optional collaborators on a Sentinel at
// construction.
type Option func(*Sentinel)

// WithMetrics attaches a telemetry sink; every AnalyzeToolCall records
// its verdict, gas utilization, and (on drift-gated Review) the drift
// level through it.
func WithMetrics(m MetricsSink) Option {
	return func(s *Sentinel) { s.metrics = m }
}

// New constructs a Sentinel from cfg, backing the registry with an
// in-memory store unless Registry.DBPath names a directory for the
// embedded store.
func New(cfg Config, opts ...Option) (*Sentinel, error) {
	var store registry.Store
	if cfg.Registry.DBPath != "" {
		db, err := registry.OpenDBStore(cfg.Registry.DBPath)
		if err != nil {
			return nil, fmt.Errorf("sentinel: opening registry store: %w", err)
		}
		store = db
	}

	monCfg := monitor.Config{
		GasLimit:       cfg.Monitor.GasLimit,
		ContextCap:     frameCapacity(cfg.Monitor.MaxContextSize),
		FlushThreshold: 0.8,
		AutoFlush:      cfg.Monitor.AutoFlush,
		FlushCount:     cfg.Monitor.FlushCount,
		DetectCycles:   cfg.Monitor.DetectCycles,
	}

	cns := council.NewConsensusEngineWithThreshold(2.0/3.0, cfg.Council.MinVotesForApproval)
	waluigi := council.NewWaluigiDetector()
	waluigi.SetThreshold(cfg.Council.WaluigiThreshold)
	cncl := council.NewWithComponents([]council.Evaluator{
		council.NewDeontologist(),
		council.NewConsequentialist(),
		council.NewLogicist(),
	}, cns, waluigi)
	cncl.SetWaluigiEnabled(cfg.Council.DetectWaluigi)

	s := &Sentinel{
		config:   cfg,
		registry: registry.NewGuard(store),
		monitor:  monitor.New(monCfg),
		council:  cncl,
		firewall: firewall.WithConfig(cfg.Firewall),
		logger:   logging.New("sentinel"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// frameCapacity coarsely translates a byte budget into a frame count,
// assuming roughly 1KB per context frame.
func frameCapacity(maxBytes int) int {
	cap := maxBytes / 1024
	if cap < 1 {
		cap = 1
	}
	return cap
}

// RegisterTool registers a tool's schema with the registry.
func (s *Sentinel) RegisterTool(schema registry.SchemaRecord) ([32]byte, error) {
	return s.registry.RegisterTool(schema)
}

// EndStep closes the monitor's currently open step.
func (s *Sentinel) EndStep(result string) error {
	return s.monitor.EndStep(result)
}

// GasRemaining reports the monitor's remaining gas.
func (s *Sentinel) GasRemaining() uint64 { return s.monitor.GasRemaining() }

// ResetMonitor is privileged: it clears monitor state only, leaving
// the registry untouched.
func (s *Sentinel) ResetMonitor() { s.monitor.Reset() }

// RegistryRoot returns the current Merkle root of all registered tools.
func (s *Sentinel) RegistryRoot() ([32]byte, error) { return s.registry.GetRoot() }

// StepCount reports the monitor's step count.
func (s *Sentinel) StepCount() uint64 { return s.monitor.StepCount() }

// IsHalted reports whether the monitor has halted.
func (s *Sentinel) IsHalted() bool { return s.monitor.IsHalted() }

// AnalyzeToolCall runs the full Registry -> Monitor -> Council pipeline
// for a single tool call and returns the top-level Verdict.
func (s *Sentinel) AnalyzeToolCall(name string, declared registry.SchemaRecord, params []string) (Verdict, error) {
	return s.AnalyzeToolCallWithResponse(name, declared, params, nil, nil)
}

// AnalyzeToolCallWithResponse runs the same pipeline as AnalyzeToolCall
// but additionally hands the council phase model response content (and
// optionally the previous turn's content) for Waluigi analysis. Use
// this when a tool call is itself the model acting on its own prior
// utterance, e.g. evaluating a generated response before it is surfaced.
func (s *Sentinel) AnalyzeToolCallWithResponse(name string, declared registry.SchemaRecord, params []string, response, previous *string) (Verdict, error) {
	blocked, flags, err := s.checkRegistry(name, declared)
	if err != nil {
		return Verdict{}, err
	}
	if blocked != nil && s.config.Global.ShortCircuit {
		s.audit(name, *blocked)
		return *blocked, nil
	}

	mBlock, mFlags, err := s.checkMonitor(name)
	if err != nil {
		return Verdict{}, err
	}
	flags = append(flags, mFlags...)
	if blocked == nil {
		blocked = mBlock
	}
	if blocked != nil && s.config.Global.ShortCircuit {
		s.audit(name, *blocked)
		return *blocked, nil
	}

	cBlock, cFlags := s.checkCouncil(name, params, response, previous)
	flags = append(flags, cFlags...)
	if blocked == nil {
		blocked = cBlock
	}

	var v Verdict
	switch {
	case blocked != nil:
		v = *blocked
	case len(flags) > 0:
		v = ReviewVerdict(flags)
	default:
		v = AllowVerdict()
	}
	s.audit(name, v)
	return v, nil
}

// checkRegistry implements pipeline step 1. A non-nil block verdict
// ends the call (subject to global.short_circuit); review flags ride
// along and merge with whatever later phases raise.
func (s *Sentinel) checkRegistry(name string, declared registry.SchemaRecord) (*Verdict, []ReviewFlag, error) {
	result, err := s.registry.VerifyTool(declared)
	if err != nil {
		return s.internalError(err)
	}

	switch result.Status {
	case registry.Valid:
		return nil, nil, nil

	case registry.Invalid:
		drift, derr := s.registry.DetectDrift(declared)
		if derr == nil && drift.Level <= s.config.Registry.MaxAllowedDrift {
			if s.metrics != nil {
				s.metrics.ObserveDrift(drift.Level.String())
			}
			if _, rerr := s.registry.RegisterTool(declared); rerr != nil {
				return s.internalError(rerr)
			}
			return nil, []ReviewFlag{{
				Kind:       FlagSchemaDrift,
				ToolName:   name,
				DriftLevel: drift.Level.String(),
				Detail:     strings.Join(drift.Changes, "; "),
			}}, nil
		}
		v := BlockVerdict(BlockReason{
			Kind:     ReasonHashMismatch,
			ToolName: name,
			Expected: hex.EncodeToString(result.Expected[:]),
			Actual:   hex.EncodeToString(result.Actual[:]),
		})
		return &v, nil, nil

	default: // registry.Unknown
		if s.config.Registry.AllowUnknownTools {
			return nil, []ReviewFlag{{Kind: FlagNewTool, ToolName: name}}, nil
		}
		v := BlockVerdict(BlockReason{Kind: ReasonUnknownTool, ToolName: name})
		return &v, nil, nil
	}
}

// checkMonitor implements pipeline step 2. Success yields no verdict
// but may carry a HighGasUsage review flag for the caller to fold in.
func (s *Sentinel) checkMonitor(name string) (*Verdict, []ReviewFlag, error) {
	err := s.monitor.BeginStep(name, monitor.OpToolCall)
	if s.metrics != nil {
		if total := s.monitor.ContextEvictedTotal(); total > s.evictedSeen {
			s.metrics.ObserveContextEviction(int(total - s.evictedSeen))
			s.evictedSeen = total
		}
	}
	if err == nil {
		util := s.monitor.GasUtilization()
		if s.metrics != nil {
			s.metrics.ObserveGasUtilization(util)
		}
		if util > 0.80 {
			pct := uint8(util * 100)
			return nil, []ReviewFlag{{Kind: FlagHighGasUsage, ToolName: name, Percentage: pct}}, nil
		}
		return nil, nil, nil
	}

	switch e := err.(type) {
	case *monitor.GasExhaustedError:
		status := s.monitor.StatusReport()
		v := BlockVerdict(BlockReason{
			Kind:     ReasonGasExhausted,
			ToolName: name,
			GasUsed:  status.GasConsumed,
			GasLimit: status.GasConsumed + status.GasRemaining,
		})
		return &v, nil, nil
	case *monitor.CycleDetectedError:
		if s.metrics != nil {
			s.metrics.ObserveMonitorHalt()
		}
		v := BlockVerdict(BlockReason{Kind: ReasonCycleDetected, ToolName: name, Cycle: e.Description})
		return &v, nil, nil
	case *monitor.ContextOverflowError:
		v := BlockVerdict(BlockReason{
			Kind:        ReasonContextOverflow,
			ToolName:    name,
			ContextSize: e.Current,
			ContextMax:  e.Limit,
		})
		return &v, nil, nil
	default:
		return s.internalError(err)
	}
}

// checkCouncil implements pipeline step 3. The target handed to the
// council is the joined parameter list rather than the tool name
// itself: AnalyzeToolCall has no separate "resource acted upon"
// argument, and the deontologist/consequentialist rule patterns
// (filesystem paths, credential names) only ever appear in params
// (e.g. a "path" argument), never in the tool name.
func (s *Sentinel) checkCouncil(name string, params []string, response, previous *string) (*Verdict, []ReviewFlag) {
	target := strings.Join(params, " ")
	proposal := council.NewProposal(name, target)
	for _, p := range params {
		proposal = proposal.WithParameter(p)
	}
	if response != nil {
		proposal = proposal.WithResponse(*response)
	}
	if previous != nil {
		proposal = proposal.WithPrevious(*previous)
	}

	verdict := s.council.Evaluate(proposal)
	switch verdict.Kind {
	case council.VerdictApproved:
		return nil, nil
	case council.VerdictRejected:
		v := BlockVerdict(BlockReason{
			Kind:     ReasonCouncilRejected,
			ToolName: name,
			Votes:    voteSummary(verdict.Tally),
			Reason:   verdict.Reason,
		})
		return &v, nil
	case council.VerdictWaluigiVeto:
		v := BlockVerdict(BlockReason{
			Kind:     ReasonWaluigiEffect,
			ToolName: name,
			Score:    verdict.WaluigiScore.Value(),
			Patterns: verdict.Patterns,
		})
		return &v, nil
	default: // council.VerdictNoConsensus
		return nil, []ReviewFlag{{Kind: FlagSplitVote, ToolName: name, Votes: voteSummary(verdict.Tally)}}
	}
}

func voteSummary(t council.VoteTally) string {
	return fmt.Sprintf("%d approve / %d reject / %d abstain", t.Approvals, t.Rejections, t.Abstentions)
}

// internalError implements the fail-closed policy: when fail_closed
// is set, any non-domain error maps to an opaque SecurityViolation
// Block; otherwise the error propagates to the caller.
func (s *Sentinel) internalError(err error) (*Verdict, []ReviewFlag, error) {
	wrapped := newError(ErrInternal, "pipeline failure", err)
	if s.config.Global.FailClosed {
		v := BlockVerdict(BlockReason{Kind: ReasonSecurityViolation, Description: strings.TrimSpace(wrapped.Error())})
		return &v, nil, nil
	}
	return nil, nil, wrapped
}

// ScanPrompt runs the companion semantic firewall over free text bound
// for a model (an utterance or tool parameter), mapping its scan
// outcome onto the same Verdict type AnalyzeToolCall returns. Unlike
// the tool-call pipeline, this does not touch the registry, monitor,
// or council — the firewall is a standalone companion surface.
//
// The text is sanitized before scanning (ANSI escapes, zero-width and
// directional characters stripped) so that invisible-character
// smuggling cannot split a pattern the matcher would otherwise catch.
// Text too large to sanitize is uninspectable and blocks regardless
// of the fail_closed flag.
func (s *Sentinel) ScanPrompt(text string) Verdict {
	cleaned, err := firewall.SanitizeText(text)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveFirewall("blocked", "input")
		}
		return BlockVerdict(BlockReason{Kind: ReasonSecurityViolation, Description: err.Error()})
	}

	r := s.firewall.ScanInput(cleaned)
	if s.metrics != nil {
		s.metrics.ObserveFirewall(r.Outcome.String(), "input")
	}
	return verdictFromScan(r)
}

// ScanOutput runs canary-leak detection over model output text.
func (s *Sentinel) ScanOutput(text string) Verdict {
	r := s.firewall.ScanOutput(text)
	if s.metrics != nil {
		s.metrics.ObserveFirewall(r.Outcome.String(), "output")
	}
	return verdictFromScan(r)
}

// InjectCanary wraps prompt with this instance's session-unique canary
// token, for later leak detection via ScanOutput.
func (s *Sentinel) InjectCanary(prompt string) string {
	return s.firewall.InjectCanary(prompt)
}

// CanaryToken returns this instance's session-unique canary token.
func (s *Sentinel) CanaryToken() string { return s.firewall.CanaryToken() }

func verdictFromScan(r firewall.ScanResult) Verdict {
	switch r.Outcome {
	case firewall.OutcomeBlocked:
		return BlockVerdict(BlockReason{
			Kind:        ReasonContentBlocked,
			Threat:      r.Threat.String(),
			Confidence:  r.Confidence,
			Description: r.Detail,
		})
	case firewall.OutcomeFlagged:
		return ReviewVerdict([]ReviewFlag{{Kind: FlagContentFlagged, Score: r.Confidence, Detail: r.Detail}})
	default:
		return AllowVerdict()
	}
}

// Close releases the underlying registry store.
func (s *Sentinel) Close() error { return s.registry.Close() }
