package types

// DecisionRecord is the audit line written per symbol per cycle.
type DecisionRecord struct {
	Time     string        `json:"time"`
	CycleID  string        `json:"cycle_id"`
	Symbol   string        `json:"symbol"`
	Price    float64       `json:"price"`
	Trend    TrendLabel    `json:"trend"`
	AI       AIDecision    `json:"ai"`
	Outcome  AdviceOutcome `json:"outcome"`
	Cached   bool          `json:"cached"`
	RiskGate RiskVerdict   `json:"risk_gate"`
}
