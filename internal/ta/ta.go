package ta

import "math"

// All functions return math.NaN() when the input is shorter than the window.

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// RSI uses Wilder smoothing: the first average is a simple mean of `period`
// changes, every later change is folded in with weight 1/period.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	p := float64(period)
	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/p, loss/p
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
	}
	if math.IsNaN(avgGain) || math.IsNaN(avgLoss) {
		return math.NaN()
	}
	if avgLoss == 0 {
		if avgGain > 0 {
			return 100.0
		}
		return 50.0
	}
	rs := avgGain / avgLoss
	rsi := 100.0 - (100.0 / (1.0 + rs))
	return math.Max(0, math.Min(100, rsi))
}

// StdDev is the sample standard deviation of the last n values.
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 1 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n-1))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// EMASeries returns the exponential moving average of every prefix of vals,
// seeded with the first value.
func EMASeries(vals []float64, n int) []float64 {
	if len(vals) == 0 || n <= 0 {
		return nil
	}
	alpha := 2.0 / float64(n+1)
	out := make([]float64, len(vals))
	out[0] = vals[0]
	for i := 1; i < len(vals); i++ {
		out[i] = alpha*vals[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the latest and previous histogram values
// (fast EMA - slow EMA, minus the signal EMA of that line).
func MACD(closes []float64, fast, slow, signal int) (hist, prev float64) {
	hist, prev = math.NaN(), math.NaN()
	need := slow + signal - 1
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < need {
		return
	}
	ef := EMASeries(closes, fast)
	es := EMASeries(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = ef[i] - es[i]
	}
	sig := EMASeries(line, signal)
	last := len(closes) - 1
	hist = line[last] - sig[last]
	if len(closes) > need {
		prev = line[last-1] - sig[last-1]
	}
	return
}

func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	n := period
	if n <= 0 || len(closes) < n+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += TrueRange(highs[i], lows[i], closes[i-1])
	}
	return sum / float64(n)
}

func TrueRange(high, low, prevClose float64) float64 {
	tr1 := high - low
	tr2 := math.Abs(high - prevClose)
	tr3 := math.Abs(low - prevClose)
	return math.Max(tr1, math.Max(tr2, tr3))
}
