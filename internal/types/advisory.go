package types

type Verdict string

const (
	VerdictBuy   Verdict = "buy"
	VerdictHold  Verdict = "hold"
	VerdictAvoid Verdict = "avoid"
)

type AIDecision struct {
	Decision      Verdict `json:"decision"`
	Confidence    int     `json:"confidence"`
	Reason        string  `json:"reason"`
	Degraded      bool    `json:"degraded"`
	ActionTrigger *bool   `json:"action_trigger,omitempty"`
	Model         string  `json:"model,omitempty"`
}

// AdviceOutcome tells a genuine provider answer apart from the fallback paths.
type AdviceOutcome string

const (
	OutcomeOK       AdviceOutcome = "ok"
	OutcomeRescued  AdviceOutcome = "rescued"
	OutcomeDegraded AdviceOutcome = "degraded"
)

type Advice struct {
	Decision AIDecision    `json:"decision"`
	Outcome  AdviceOutcome `json:"outcome"`
	Cached   bool          `json:"cached"`
}

func (a Advice) OK() bool { return a.Outcome == OutcomeOK }

// NeutralDecision is the value served when no usable provider answer exists.
func NeutralDecision(reason string) AIDecision {
	return AIDecision{Decision: VerdictHold, Confidence: 0, Reason: reason, Degraded: true}
}

// AdviceRequest is everything the advisory prompt is rendered from.
type AdviceRequest struct {
	Symbol   string
	Name     string
	Strategy string
	Snapshot IndicatorSnapshot
	Trend    TrendLabel
	Signals  Signals
	Context  map[string]string
}

// CompletionRequest is one call to an inference provider.
type CompletionRequest struct {
	Model           string
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}
