package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/types"
)

// usReference is the overnight US tape a Taiwan session opens against.
var usReference = []struct {
	key    string
	ticker string
}{
	{"spx", "^GSPC"},
	{"nasdaq", "^IXIC"},
	{"sox", "^SOX"},
	{"tsm", "TSM"},
}

// USMarket reports the previous US session's index moves. The values are the
// same for every symbol, so one fetch is reused for ttl.
type USMarket struct {
	yahoo *Yahoo
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	cached  map[string]string
	fetched time.Time
}

var _ interfaces.ContextProvider = (*USMarket)(nil)

func NewUSMarket(yahoo *Yahoo, ttl time.Duration) *USMarket {
	return &USMarket{yahoo: yahoo, ttl: ttl, now: time.Now}
}

func (u *USMarket) Name() string { return "us_market" }

func (u *USMarket) Context(ctx context.Context, _ string) (map[string]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cached != nil && u.now().Sub(u.fetched) < u.ttl {
		return copyFields(u.cached), nil
	}

	out := make(map[string]string, len(usReference)+1)
	var sox, tsm float64
	ok := 0
	var lastErr error
	for _, ref := range usReference {
		_, chg, err := u.yahoo.DailyChange(ctx, ref.ticker)
		if err != nil {
			out[ref.key] = types.Unavailable
			lastErr = err
			continue
		}
		ok++
		out[ref.key] = fmt.Sprintf("%+.2f%%", chg)
		switch ref.key {
		case "sox":
			sox = chg
		case "tsm":
			tsm = chg
		}
	}
	if ok == 0 {
		out["us_signal"] = types.Unavailable
		return out, fmt.Errorf("us market reference: %w", lastErr)
	}
	out["us_signal"] = usSignal(sox, tsm)

	u.cached = out
	u.fetched = u.now()
	return copyFields(out), nil
}

// usSignal condenses the semiconductor moves into a one-line bias.
func usSignal(sox, tsm float64) string {
	switch {
	case sox <= -3 || tsm <= -3:
		return "semiconductors sold off overnight"
	case sox >= 2 && tsm >= 2:
		return "semiconductors strong overnight"
	default:
		return "US tape neutral"
	}
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
