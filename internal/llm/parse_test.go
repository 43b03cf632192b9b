package llm

import (
	"testing"

	"ai-grid-trader/internal/types"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		verdict  types.Verdict
		conf     int
		degraded bool
		outcome  types.AdviceOutcome
	}{
		{
			name:    "bare json",
			text:    `{"decision":"buy","confidence":72,"reason":"pullback to support"}`,
			verdict: types.VerdictBuy,
			conf:    72,
			outcome: types.OutcomeOK,
		},
		{
			name:    "fenced json",
			text:    "```json\n{\"decision\": \"avoid\", \"confidence\": 15, \"reason\": \"breakdown\"}\n```",
			verdict: types.VerdictAvoid,
			conf:    15,
			outcome: types.OutcomeOK,
		},
		{
			name:    "json inside prose",
			text:    "Here is my view: {\"decision\":\"hold\",\"confidence\":0.8,\"reason\":\"chop\"} Hope it helps.",
			verdict: types.VerdictHold,
			conf:    80,
			outcome: types.OutcomeOK,
		},
		{
			name:    "chinese verdict with percent confidence",
			text:    `{"decision":"可行","confidence":"85%","reason":"量縮回測"}`,
			verdict: types.VerdictBuy,
			conf:    85,
			outcome: types.OutcomeOK,
		},
		{
			name:     "unknown verdict in valid json",
			text:     `{"decision":"maybe","confidence":40,"reason":"unclear"}`,
			verdict:  types.VerdictHold,
			conf:     40,
			degraded: true,
			outcome:  types.OutcomeRescued,
		},
		{
			name:     "truncated json",
			text:     `{"decision": "buy", "confidence": 65, "reason": "strong sup`,
			verdict:  types.VerdictBuy,
			conf:     65,
			degraded: true,
			outcome:  types.OutcomeRescued,
		},
		{
			name:     "python dict",
			text:     `{'decision': 'buy', 'confidence': 80, 'reason': 'pullback'}`,
			verdict:  types.VerdictBuy,
			conf:     80,
			degraded: true,
			outcome:  types.OutcomeRescued,
		},
		{
			name:     "markdown bold keys",
			text:     "**decision**: buy, **confidence**: 80",
			verdict:  types.VerdictBuy,
			conf:     80,
			degraded: true,
			outcome:  types.OutcomeRescued,
		},
		{
			name:     "decision only",
			text:     `decision: avoid because volume dried up`,
			verdict:  types.VerdictAvoid,
			conf:     rescuedConfidence,
			degraded: true,
			outcome:  types.OutcomeRescued,
		},
		{
			name:     "no fields at all",
			text:     "I cannot help with that.",
			verdict:  types.VerdictHold,
			conf:     0,
			degraded: true,
			outcome:  types.OutcomeDegraded,
		},
		{
			name:     "empty",
			text:     "",
			verdict:  types.VerdictHold,
			conf:     0,
			degraded: true,
			outcome:  types.OutcomeDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, outcome := ParseDecision(tt.text)
			if d.Decision != tt.verdict {
				t.Errorf("decision = %q, want %q", d.Decision, tt.verdict)
			}
			if d.Confidence != tt.conf {
				t.Errorf("confidence = %d, want %d", d.Confidence, tt.conf)
			}
			if d.Degraded != tt.degraded {
				t.Errorf("degraded = %v, want %v", d.Degraded, tt.degraded)
			}
			if outcome != tt.outcome {
				t.Errorf("outcome = %q, want %q", outcome, tt.outcome)
			}
			if d.Reason == "" {
				t.Error("reason should never be empty")
			}
		})
	}
}

func TestParseDecisionRescuedReason(t *testing.T) {
	tests := map[string]string{
		`{'decision': 'buy', 'confidence': 80, 'reason': 'pullback'}`: "pullback",
		`{'decision': 'hold', 'reason': 'it\'s choppy'}`:              "it's choppy",
		"**decision**: avoid\n**reason**: \"gap down\"":               "gap down",
		`decision = buy, reason = "volume \"dried\" up"`:              `volume "dried" up`,
	}
	for text, want := range tests {
		d, outcome := ParseDecision(text)
		if outcome != types.OutcomeRescued {
			t.Errorf("%q: outcome = %q, want rescued", text, outcome)
		}
		if d.Reason != want {
			t.Errorf("%q: reason = %q, want %q", text, d.Reason, want)
		}
	}

	d, _ := ParseDecision(`{'decision': 'buy', 'confidence': 70, 'action_trigger': True}`)
	if d.ActionTrigger == nil || !*d.ActionTrigger {
		t.Errorf("expected python True to read as action_trigger=true, got %v", d.ActionTrigger)
	}
}

func TestParseDecisionActionTrigger(t *testing.T) {
	d, _ := ParseDecision(`{"decision":"buy","confidence":60,"reason":"r","action_trigger":true}`)
	if d.ActionTrigger == nil || !*d.ActionTrigger {
		t.Fatalf("expected action_trigger=true, got %v", d.ActionTrigger)
	}

	d, _ = ParseDecision(`{"decision":"buy","confidence":60,"reason":"r"}`)
	if d.ActionTrigger != nil {
		t.Errorf("expected no action_trigger, got %v", *d.ActionTrigger)
	}

	d, _ = ParseDecision(`decision: hold, confidence: 30, action_trigger: false`)
	if d.ActionTrigger == nil || *d.ActionTrigger {
		t.Errorf("expected rescued action_trigger=false, got %v", d.ActionTrigger)
	}
}

func TestClampConfidence(t *testing.T) {
	tests := map[float64]int{
		-5:    0,
		0:     0,
		0.5:   50,
		0.994: 99,
		1:     1,
		72.4:  72,
		150:   100,
	}
	for in, want := range tests {
		if got := clampConfidence(in); got != want {
			t.Errorf("clampConfidence(%v) = %d, want %d", in, got, want)
		}
	}
}
