// Package council implements the evaluator triad, Byzantine-style
// quorum engine, and alignment-inversion detector that together form
// the consensus layer of the policy pipeline.
package council

import "fmt"

// EvaluatorFailureError reports that an evaluator could not produce a
// vote for a proposal.
type EvaluatorFailureError struct {
	Evaluator string
	Reason    string
}

func (e *EvaluatorFailureError) Error() string {
	return fmt.Sprintf("evaluator %q failed to vote: %s", e.Evaluator, e.Reason)
}

// InvalidProposalError reports a malformed action proposal.
type InvalidProposalError struct {
	Reason string
}

func (e *InvalidProposalError) Error() string {
	return fmt.Sprintf("invalid action proposal: %s", e.Reason)
}
