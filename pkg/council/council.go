package council

import "strings"

// ActionProposal is an action awaiting council evaluation: what would
// run, against what target, with what parameters, and (for response
// evaluation) the model content to check for alignment inversion.
type ActionProposal struct {
	Action           string
	Target           string
	Parameters       []string
	History          []string
	ResponseContent  *string
	PreviousResponse *string
}

// NewProposal returns a proposal for the given action and target.
func NewProposal(action, target string) ActionProposal {
	return ActionProposal{Action: action, Target: target}
}

// WithParameter appends a parameter.
func (p ActionProposal) WithParameter(param string) ActionProposal {
	p.Parameters = append(p.Parameters, param)
	return p
}

// WithResponse attaches model response content for Waluigi analysis.
func (p ActionProposal) WithResponse(content string) ActionProposal {
	p.ResponseContent = &content
	return p
}

// WithPrevious attaches the previous turn's content for context.
func (p ActionProposal) WithPrevious(previous string) ActionProposal {
	p.PreviousResponse = &previous
	return p
}

func (p ActionProposal) toContext() EvaluationContext {
	return EvaluationContext{
		Action:     p.Action,
		Target:     p.Target,
		Parameters: p.Parameters,
		History:    p.History,
	}
}

// VerdictKind discriminates the council's outcome.
type VerdictKind int

const (
	VerdictApproved VerdictKind = iota
	VerdictRejected
	VerdictWaluigiVeto
	VerdictNoConsensus
)

// Verdict is the council's decision on a proposal: the kind, the vote
// tally that produced it (where applicable), the Waluigi score (if
// response content was analyzed), a rejection reason, and any patterns
// that triggered a veto.
type Verdict struct {
	Kind         VerdictKind
	Tally        VoteTally
	WaluigiScore *WaluigiScore
	Reason       string
	Patterns     []string
}

func (v Verdict) IsApproved() bool { return v.Kind == VerdictApproved }

func (v Verdict) IsRejected() bool {
	return v.Kind == VerdictRejected || v.Kind == VerdictWaluigiVeto
}

// Council is the facade integrating the evaluator triad, the quorum
// engine, and the Waluigi detector into a single evaluation entry
// point for the full evaluator/quorum/inversion pipeline.
type Council struct {
	evaluators     []Evaluator
	consensus      *ConsensusEngine
	waluigi        *WaluigiDetector
	waluigiEnabled bool
}

// New returns a council with the default evaluator triad, default
// quorum engine, and default Waluigi detector, Waluigi checking
// enabled.
func New() *Council {
	return &Council{
		evaluators: []Evaluator{
			NewDeontologist(),
			NewConsequentialist(),
			NewLogicist(),
		},
		consensus:      NewConsensusEngine(),
		waluigi:        NewWaluigiDetector(),
		waluigiEnabled: true,
	}
}

// NewWithComponents returns a council built from caller-supplied
// components, Waluigi checking enabled.
func NewWithComponents(evaluators []Evaluator, consensus *ConsensusEngine, waluigi *WaluigiDetector) *Council {
	return &Council{evaluators: evaluators, consensus: consensus, waluigi: waluigi, waluigiEnabled: true}
}

// SetWaluigiEnabled toggles Waluigi checking.
func (c *Council) SetWaluigiEnabled(enabled bool) { c.waluigiEnabled = enabled }

// WaluigiEnabled reports whether Waluigi checking is active.
func (c *Council) WaluigiEnabled() bool { return c.waluigiEnabled }

// EvaluatorCount returns the number of evaluators in the council.
func (c *Council) EvaluatorCount() int { return len(c.evaluators) }

// EvaluatorNames returns the name of every evaluator in the council.
func (c *Council) EvaluatorNames() []string {
	names := make([]string, len(c.evaluators))
	for i, e := range c.evaluators {
		names[i] = e.Name()
	}
	return names
}

// Evaluate runs the full council pipeline against proposal:
//
//  1. Waluigi check, if enabled and response content is present —
//     a score at or above the veto threshold returns VerdictWaluigiVeto
//     immediately, overriding everything downstream.
//  2. Collect a vote from every evaluator.
//  3. Run the quorum engine over the collected votes.
//  4. Map the quorum result to a Verdict. Approved and Rejected verdicts
//     carry the Waluigi score (computed even when it didn't veto) for
//     audit purposes; a NoConsensus verdict carries the tally and a
//     reason only.
func (c *Council) Evaluate(proposal ActionProposal) Verdict {
	if c.waluigiEnabled && proposal.ResponseContent != nil {
		score, patterns := c.waluigi.Analyze(*proposal.ResponseContent, proposal.PreviousResponse)
		if score.IsInverted(c.waluigi.Threshold()) {
			return Verdict{Kind: VerdictWaluigiVeto, WaluigiScore: &score, Patterns: patterns}
		}
	}

	ctx := proposal.toContext()
	votes := make([]EvaluatorVote, len(c.evaluators))
	for i, e := range c.evaluators {
		votes[i] = e.Evaluate(ctx)
	}

	result, tally := c.consensus.Evaluate(votes)

	var waluigiScore *WaluigiScore
	if proposal.ResponseContent != nil {
		score, _ := c.waluigi.Analyze(*proposal.ResponseContent, proposal.PreviousResponse)
		waluigiScore = &score
	}

	switch result {
	case ResultApproved:
		return Verdict{Kind: VerdictApproved, Tally: tally, WaluigiScore: waluigiScore}
	case ResultRejected:
		var reasons []string
		for _, v := range tally.Votes {
			if v.Decision == Reject {
				reasons = append(reasons, v.Reasoning)
			}
		}
		reason := "Rejected by consensus"
		if len(reasons) > 0 {
			reason = strings.Join(reasons, "; ")
		}
		return Verdict{Kind: VerdictRejected, Tally: tally, WaluigiScore: waluigiScore, Reason: reason}
	default:
		return Verdict{Kind: VerdictNoConsensus, Tally: tally, Reason: "Insufficient votes for consensus"}
	}
}

// EvaluateWithCheck runs an arbitrary pre-check before evaluation,
// returning its error without evaluating on failure. This is an escape
// hatch for callers layering additional validation ahead of the
// council.
func (c *Council) EvaluateWithCheck(proposal ActionProposal, check func(ActionProposal) error) (Verdict, error) {
	if err := check(proposal); err != nil {
		return Verdict{}, err
	}
	return c.Evaluate(proposal), nil
}
