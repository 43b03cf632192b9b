package types

type GridLevel struct {
	Index        int     `json:"index"`
	TriggerPrice float64 `json:"trigger_price"`
	Filled       bool    `json:"filled"`
	Shares       int     `json:"shares"`
	FillPrice    float64 `json:"fill_price"`
}

// GridPosition holds one symbol's rungs. Levels only contains filled rungs;
// trigger prices of empty rungs are derived from RefPrice.
type GridPosition struct {
	Symbol      string            `json:"symbol"`
	TotalShares int               `json:"total_shares"`
	TotalCost   float64           `json:"total_cost"`
	RefPrice    float64           `json:"ref_price"`
	Levels      map[int]GridLevel `json:"levels"`
}

func (p *GridPosition) AvgCost() float64 {
	if p == nil || p.TotalShares == 0 {
		return 0
	}
	return p.TotalCost / float64(p.TotalShares)
}

func (p *GridPosition) Clone() *GridPosition {
	if p == nil {
		return nil
	}
	c := *p
	c.Levels = make(map[int]GridLevel, len(p.Levels))
	for k, v := range p.Levels {
		c.Levels[k] = v
	}
	return &c
}

type GridEventKind string

const (
	GridFill    GridEventKind = "fill"
	GridRelease GridEventKind = "release"
	GridSkip    GridEventKind = "skip"
)

// GridEvent describes one rung transition in a cycle. Rung is 1-based.
type GridEvent struct {
	Kind      GridEventKind `json:"kind"`
	Symbol    string        `json:"symbol"`
	Rung      int           `json:"rung"`
	Shares    int           `json:"shares"`
	Price     float64       `json:"price"`
	FillPrice float64       `json:"fill_price,omitempty"`
	Realized  float64       `json:"realized,omitempty"`
	Note      string        `json:"note,omitempty"`
}
