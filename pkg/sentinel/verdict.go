package sentinel

import "fmt"

// VerdictKind discriminates the facade's top-level decision.
type VerdictKind int

const (
	Allow VerdictKind = iota
	Block
	Review
)

// String returns the stable discriminant name used in audit records.
func (k VerdictKind) String() string {
	switch k {
	case Allow:
		return "Allow"
	case Block:
		return "Block"
	case Review:
		return "Review"
	default:
		return "Unknown"
	}
}

// BlockReasonKind enumerates why a Block verdict was produced.
type BlockReasonKind int

const (
	ReasonHashMismatch BlockReasonKind = iota
	ReasonCycleDetected
	ReasonGasExhausted
	ReasonContextOverflow
	ReasonCouncilRejected
	ReasonWaluigiEffect
	ReasonUnknownTool
	ReasonSecurityViolation
	ReasonContentBlocked
)

// BlockReason carries the structured detail for a Block verdict. Only
// the fields relevant to Kind are populated.
type BlockReason struct {
	Kind BlockReasonKind

	ToolName string

	Expected string
	Actual   string

	Cycle string

	GasUsed  uint64
	GasLimit uint64

	ContextSize int
	ContextMax  int

	Votes  string
	Reason string

	Score    float64
	Patterns []string

	Description string

	Threat     string
	Confidence float64
}

func (r BlockReason) String() string {
	switch r.Kind {
	case ReasonHashMismatch:
		return fmt.Sprintf("Hash mismatch on '%s': expected %s, got %s", r.ToolName, r.Expected, r.Actual)
	case ReasonCycleDetected:
		return fmt.Sprintf("Cycle detected: %s", r.Cycle)
	case ReasonGasExhausted:
		return fmt.Sprintf("Gas exhausted: used %d of %d limit", r.GasUsed, r.GasLimit)
	case ReasonContextOverflow:
		return fmt.Sprintf("Context overflow: %d exceeds max %d", r.ContextSize, r.ContextMax)
	case ReasonCouncilRejected:
		return fmt.Sprintf("Council rejected (%s): %s", r.Votes, r.Reason)
	case ReasonWaluigiEffect:
		return fmt.Sprintf("Waluigi effect (score: %.2f): %v", r.Score, r.Patterns)
	case ReasonUnknownTool:
		return fmt.Sprintf("Unknown tool: '%s'", r.ToolName)
	case ReasonSecurityViolation:
		return fmt.Sprintf("Security violation: %s", r.Description)
	case ReasonContentBlocked:
		return fmt.Sprintf("Content blocked (%s, confidence %.2f): %s", r.Threat, r.Confidence, r.Description)
	default:
		return "unknown block reason"
	}
}

// Label returns a short, stable, metrics-friendly name for the reason
// kind (snake_case, no interpolated detail), distinct from the
// human-readable String().
func (r BlockReason) Label() string {
	switch r.Kind {
	case ReasonHashMismatch:
		return "hash_mismatch"
	case ReasonCycleDetected:
		return "cycle_detected"
	case ReasonGasExhausted:
		return "gas_exhausted"
	case ReasonContextOverflow:
		return "context_overflow"
	case ReasonCouncilRejected:
		return "council_rejected"
	case ReasonWaluigiEffect:
		return "waluigi_effect"
	case ReasonUnknownTool:
		return "unknown_tool"
	case ReasonSecurityViolation:
		return "security_violation"
	case ReasonContentBlocked:
		return "content_blocked"
	default:
		return "unknown"
	}
}

// ReviewFlagKind enumerates why a Review verdict was produced.
type ReviewFlagKind int

const (
	FlagSchemaDrift ReviewFlagKind = iota
	FlagSplitVote
	FlagHighGasUsage
	FlagNewTool
	FlagBorderlineWaluigi
	FlagContentFlagged
)

// ReviewFlag carries the structured detail for one reason a Review
// verdict requires human attention. Only the fields relevant to Kind
// are populated. A schema-drift flag carries the drift level and, in
// Detail, the individual change descriptions, so the caller can judge
// the tolerated drift rather than just learn that some occurred.
type ReviewFlag struct {
	Kind ReviewFlagKind

	ToolName   string
	DriftLevel string
	Votes      string
	Percentage uint8
	Score      float64
	Detail     string
}

func (f ReviewFlag) String() string {
	switch f.Kind {
	case FlagSchemaDrift:
		return fmt.Sprintf("Schema drift on '%s' (%s): %s", f.ToolName, f.DriftLevel, f.Detail)
	case FlagSplitVote:
		return fmt.Sprintf("Split council vote: %s", f.Votes)
	case FlagHighGasUsage:
		return fmt.Sprintf("High gas usage: %d%%", f.Percentage)
	case FlagNewTool:
		return fmt.Sprintf("New tool: '%s'", f.ToolName)
	case FlagBorderlineWaluigi:
		return fmt.Sprintf("Borderline Waluigi score: %.2f", f.Score)
	case FlagContentFlagged:
		return fmt.Sprintf("Content flagged (confidence %.2f): %s", f.Score, f.Detail)
	default:
		return "unknown review flag"
	}
}

// Label returns a short, stable, metrics-friendly name for the flag
// kind.
func (f ReviewFlag) Label() string {
	switch f.Kind {
	case FlagSchemaDrift:
		return "schema_drift"
	case FlagSplitVote:
		return "split_vote"
	case FlagHighGasUsage:
		return "high_gas_usage"
	case FlagNewTool:
		return "new_tool"
	case FlagBorderlineWaluigi:
		return "borderline_waluigi"
	case FlagContentFlagged:
		return "content_flagged"
	default:
		return "unknown"
	}
}

// Verdict is the facade's top-level decision: Allow carries no
// payload, Block carries exactly one BlockReason, Review carries one
// or more ReviewFlags.
type Verdict struct {
	Kind   VerdictKind
	Reason BlockReason
	Flags  []ReviewFlag
}

// AllowVerdict returns an Allow verdict.
func AllowVerdict() Verdict { return Verdict{Kind: Allow} }

// BlockVerdict returns a Block verdict carrying reason.
func BlockVerdict(reason BlockReason) Verdict { return Verdict{Kind: Block, Reason: reason} }

// ReviewVerdict returns a Review verdict carrying flags.
func ReviewVerdict(flags []ReviewFlag) Verdict { return Verdict{Kind: Review, Flags: flags} }

func (v Verdict) IsAllowed() bool      { return v.Kind == Allow }
func (v Verdict) IsBlocked() bool      { return v.Kind == Block }
func (v Verdict) RequiresReview() bool { return v.Kind == Review }
