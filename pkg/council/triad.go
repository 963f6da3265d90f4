package council

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleSeverity grades a Deontologist rule violation.
type RuleSeverity int

const (
	SeverityCritical RuleSeverity = iota
	SeverityHigh
	SeverityMedium
	SeverityLow
)

// Rule is a prohibited-action pattern in the Deontologist's rule set.
//
// Pattern is compiled as a case-insensitive regular expression, not
// matched as a literal substring: the default rules are written in
// alternation form (e.g. "/etc/|/sys/|/proc/") and only trip under
// real alternation matching.
type Rule struct {
	Name     string
	Pattern  string
	Severity RuleSeverity

	compiled *regexp.Regexp
}

func compileRule(r Rule) Rule {
	r.compiled = regexp.MustCompile("(?i)" + r.Pattern)
	return r
}

// Deontologist is the rule-based evaluator: it rejects actions that
// violate a fixed rule regardless of their outcome.
type Deontologist struct {
	rules []Rule
}

// NewDeontologist returns a Deontologist with the default security
// rule set.
func NewDeontologist() *Deontologist {
	return &Deontologist{rules: defaultRules()}
}

// NewDeontologistWithRules returns a Deontologist evaluating against a
// caller-supplied rule set.
func NewDeontologistWithRules(rules []Rule) *Deontologist {
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		compiled[i] = compileRule(r)
	}
	return &Deontologist{rules: compiled}
}

func defaultRules() []Rule {
	raw := []Rule{
		{Name: "no_system_modification", Pattern: "/etc/|/sys/|/proc/", Severity: SeverityCritical},
		{Name: "no_credential_access", Pattern: "passwd|shadow|credentials|secrets", Severity: SeverityCritical},
		{Name: "no_arbitrary_execution", Pattern: "exec|eval|system|shell", Severity: SeverityHigh},
		{Name: "no_network_exfiltration", Pattern: "upload|exfil|transmit|send.*external", Severity: SeverityHigh},
	}
	out := make([]Rule, len(raw))
	for i, r := range raw {
		out[i] = compileRule(r)
	}
	return out
}

func (d *Deontologist) checkRules(ctx EvaluationContext) (Rule, bool) {
	actionStr := ctx.Action + " " + ctx.Target
	for _, r := range d.rules {
		if r.compiled.MatchString(actionStr) {
			return r, true
		}
	}
	return Rule{}, false
}

func (d *Deontologist) Name() string { return "Deontologist" }

func (d *Deontologist) Framework() string {
	return "Kantian deontology - rule-based ethics focused on duty and obligation"
}

func (d *Deontologist) Evaluate(ctx EvaluationContext) EvaluatorVote {
	rule, hit := d.checkRules(ctx)
	if !hit {
		return ApproveVote(d.Name(), ConfidenceHigh, "No rule violations detected")
	}

	var confidence Confidence
	switch rule.Severity {
	case SeverityCritical:
		confidence = ConfidenceHigh
	case SeverityHigh:
		confidence = 0.8
	case SeverityMedium:
		confidence = ConfidenceMedium
	default:
		confidence = ConfidenceLow
	}

	decision := Reject
	if rule.Severity == SeverityLow {
		decision = Approve
	}

	return NewVote(d.Name(), decision, confidence,
		fmt.Sprintf("Violates rule %q: %s", rule.Name, rule.Pattern))
}

// HarmLevel grades the potential harm a Consequentialist pattern
// describes.
type HarmLevel int

const (
	HarmCatastrophic HarmLevel = iota
	HarmSignificant
	HarmModerate
	HarmMinimal
)

func (h HarmLevel) score() float64 {
	switch h {
	case HarmCatastrophic:
		return 1.0
	case HarmSignificant:
		return 0.7
	case HarmModerate:
		return 0.4
	default:
		return 0.1
	}
}

// HarmPattern is a potential-harm signature the Consequentialist scans
// for, weighted by severity and whether the harm is reversible.
type HarmPattern struct {
	Name       string
	Pattern    string
	HarmLevel  HarmLevel
	Reversible bool

	compiled *regexp.Regexp
}

func compileHarmPattern(p HarmPattern) HarmPattern {
	p.compiled = regexp.MustCompile("(?i)" + p.Pattern)
	return p
}

// Consequentialist is the outcome-based evaluator: it weighs the
// predicted harm of an action, discounting reversible harm.
type Consequentialist struct {
	patterns []HarmPattern
}

// NewConsequentialist returns a Consequentialist with the default harm
// pattern set.
func NewConsequentialist() *Consequentialist {
	return &Consequentialist{patterns: defaultHarmPatterns()}
}

// NewConsequentialistWithPatterns returns a Consequentialist evaluating
// against a caller-supplied harm pattern set.
func NewConsequentialistWithPatterns(patterns []HarmPattern) *Consequentialist {
	compiled := make([]HarmPattern, len(patterns))
	for i, p := range patterns {
		compiled[i] = compileHarmPattern(p)
	}
	return &Consequentialist{patterns: compiled}
}

func defaultHarmPatterns() []HarmPattern {
	raw := []HarmPattern{
		{Name: "data_destruction", Pattern: "delete|remove|destroy|wipe|format", HarmLevel: HarmCatastrophic, Reversible: false},
		{Name: "security_compromise", Pattern: "chmod 777|disable.*auth|bypass.*security", HarmLevel: HarmCatastrophic, Reversible: true},
		{Name: "service_disruption", Pattern: "kill|stop|shutdown|restart", HarmLevel: HarmSignificant, Reversible: true},
		{Name: "resource_exhaustion", Pattern: "infinite|loop|fork.*bomb|memory.*leak", HarmLevel: HarmSignificant, Reversible: true},
	}
	out := make([]HarmPattern, len(raw))
	for i, p := range raw {
		out[i] = compileHarmPattern(p)
	}
	return out
}

func (c *Consequentialist) analyzeConsequences(ctx EvaluationContext) (HarmPattern, float64, bool) {
	actionStr := ctx.Action + " " + ctx.Target + " " + strings.Join(ctx.Parameters, " ")
	for _, p := range c.patterns {
		if p.compiled.MatchString(actionStr) {
			score := p.HarmLevel.score()
			if p.Reversible {
				score *= 0.7
			}
			return p, score, true
		}
	}
	return HarmPattern{}, 0, false
}

func (c *Consequentialist) Name() string { return "Consequentialist" }

func (c *Consequentialist) Framework() string {
	return "Utilitarian consequentialism - outcome-based ethics focused on results"
}

func (c *Consequentialist) Evaluate(ctx EvaluationContext) EvaluatorVote {
	pattern, harmScore, hit := c.analyzeConsequences(ctx)
	if !hit {
		return ApproveVote(c.Name(), ConfidenceMedium, "No significant harmful consequences predicted")
	}

	var decision Decision
	switch {
	case harmScore > 0.6:
		decision = Reject
	case harmScore > 0.3:
		decision = Abstain
	default:
		decision = Approve
	}

	confidence := Confidence(0.5 + harmScore*0.4)
	reversibility := "irreversible"
	if pattern.Reversible {
		reversibility = "reversible"
	}

	return NewVote(c.Name(), decision, confidence,
		fmt.Sprintf("Detected %q pattern (harm: %.0f%%, %s)", pattern.Name, harmScore*100, reversibility))
}

// Logicist is the consistency evaluator: it rejects actions that are
// internally contradictory, malformed, or that carry an injection
// pattern in their parameters.
type Logicist struct {
	maxHistory int
}

// NewLogicist returns a Logicist considering up to 10 history entries.
func NewLogicist() *Logicist {
	return &Logicist{maxHistory: 10}
}

// NewLogicistWithHistory returns a Logicist with a custom history window.
func NewLogicistWithHistory(maxHistory int) *Logicist {
	return &Logicist{maxHistory: maxHistory}
}

type logicIssueSeverity int

const (
	issueError logicIssueSeverity = iota
	issueWarning
)

type logicIssue struct {
	severity    logicIssueSeverity
	description string
}

func (l *Logicist) validate(ctx EvaluationContext) []logicIssue {
	var issues []logicIssue

	if ctx.Action == "" {
		issues = append(issues, logicIssue{issueError, "Empty action is logically invalid"})
	}

	if strings.Contains(ctx.Action, "read") && strings.Contains(ctx.Action, "write") {
		issues = append(issues, logicIssue{issueWarning, "Simultaneous read/write may cause race conditions"})
	}

	for _, param := range ctx.Parameters {
		if strings.Contains(param, "&&") || strings.Contains(param, "||") || strings.Contains(param, ";") {
			issues = append(issues, logicIssue{issueError, fmt.Sprintf("Command injection pattern in parameter: %s", param)})
		}
	}

	recent := ctx.History
	if l.maxHistory < len(recent) {
		recent = recent[:l.maxHistory]
	}
	for _, h := range recent {
		if strings.Contains(h, "delete") || strings.Contains(h, "remove") {
			if strings.Contains(ctx.Action, "read") {
				issues = append(issues, logicIssue{issueWarning, "Reading target that was recently deleted is suspicious"})
			}
			break
		}
	}

	return issues
}

func (l *Logicist) Name() string { return "Logicist" }

func (l *Logicist) Framework() string {
	return "Formal logic - consistency, validity, and soundness of reasoning"
}

func (l *Logicist) Evaluate(ctx EvaluationContext) EvaluatorVote {
	issues := l.validate(ctx)
	if len(issues) == 0 {
		return ApproveVote(l.Name(), ConfidenceHigh, "Action is logically valid and consistent")
	}

	var errs, warns []string
	for _, i := range issues {
		if i.severity == issueError {
			errs = append(errs, i.description)
		} else {
			warns = append(warns, i.description)
		}
	}

	switch {
	case len(errs) > 0:
		return RejectVote(l.Name(), ConfidenceHigh, fmt.Sprintf("Logical errors: %s", strings.Join(errs, "; ")))
	case len(warns) > 1:
		return NewVote(l.Name(), Abstain, ConfidenceMedium, fmt.Sprintf("Multiple warnings: %s", strings.Join(warns, "; ")))
	default:
		return ApproveVote(l.Name(), ConfidenceMedium, fmt.Sprintf("Minor concerns: %s", strings.Join(warns, "; ")))
	}
}
