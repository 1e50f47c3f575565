// Package indicator precomputes the configured indicator set into arrays
// aligned with the close series. Warm-up positions hold NaN until each
// indicator has its minimum sample count.
package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Spec configures one indicator instance. Name keys the output mapping.
type Spec struct {
	Name   string
	Type   string // sma | ema | rsi | macd | boll
	Params map[string]float64
}

func (s Spec) param(key string, def float64) float64 {
	if v, ok := s.Params[key]; ok {
		return v
	}
	return def
}

// ParseSpec reads the compact config form: "sma_20", "rsi_14",
// "macd_12_26_9", "boll_20_2".
func ParseSpec(s string) (Spec, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "_")
	spec := Spec{Name: strings.ToLower(strings.TrimSpace(s)), Type: parts[0], Params: map[string]float64{}}
	nums := make([]float64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Spec{}, fmt.Errorf("bad indicator spec %q: %v", s, err)
		}
		nums = append(nums, v)
	}
	switch spec.Type {
	case "sma", "ema", "rsi":
		if len(nums) != 1 {
			return Spec{}, fmt.Errorf("bad indicator spec %q: want one period", s)
		}
		spec.Params["period"] = nums[0]
	case "macd":
		if len(nums) != 3 {
			return Spec{}, fmt.Errorf("bad indicator spec %q: want fast_slow_signal", s)
		}
		spec.Params["fast"], spec.Params["slow"], spec.Params["signal"] = nums[0], nums[1], nums[2]
	case "boll":
		if len(nums) != 2 {
			return Spec{}, fmt.Errorf("bad indicator spec %q: want period_stddev", s)
		}
		spec.Params["period"], spec.Params["stddev"] = nums[0], nums[1]
	default:
		return Spec{}, fmt.Errorf("unknown indicator type %q", spec.Type)
	}
	return spec, nil
}

// WarmupPeriods returns the longest warm-up any spec needs.
func WarmupPeriods(specs []Spec) int {
	warmup := 0
	for _, s := range specs {
		var w int
		switch s.Type {
		case "sma", "ema", "rsi", "boll":
			w = int(s.param("period", 14))
		case "macd":
			w = int(s.param("slow", 26)) + int(s.param("signal", 9))
		}
		if w > warmup {
			warmup = w
		}
	}
	return warmup
}

// Compute evaluates every spec against the close series. Multi-output
// indicators expand their name with a suffix (macd_12_26_9.signal).
func Compute(specs []Spec, closes []float64) (map[string][]float64, error) {
	out := make(map[string][]float64, len(specs))
	for _, spec := range specs {
		switch spec.Type {
		case "sma":
			out[spec.Name] = SMA(closes, int(spec.param("period", 20)))
		case "ema":
			out[spec.Name] = EMA(closes, int(spec.param("period", 20)))
		case "rsi":
			out[spec.Name] = RSI(closes, int(spec.param("period", 14)))
		case "macd":
			line, signal, hist := MACD(closes,
				int(spec.param("fast", 12)), int(spec.param("slow", 26)), int(spec.param("signal", 9)))
			out[spec.Name] = line
			out[spec.Name+".signal"] = signal
			out[spec.Name+".hist"] = hist
		case "boll":
			upper, middle, lower := Bollinger(closes, int(spec.param("period", 20)), spec.param("stddev", 2))
			out[spec.Name+".upper"] = upper
			out[spec.Name] = middle
			out[spec.Name+".lower"] = lower
		default:
			return nil, fmt.Errorf("unknown indicator type %q", spec.Type)
		}
	}
	return out, nil
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average; the first period-1 values are NaN.
func SMA(values []float64, period int) []float64 {
	out := nans(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA seeds with the SMA of the first period values.
func EMA(values []float64, period int) []float64 {
	out := nans(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)
	alpha := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// RSI uses Wilder smoothing; the first period values are NaN.
func RSI(values []float64, period int) []float64 {
	out := nans(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the line, the signal line, and the histogram.
func MACD(values []float64, fast, slow, signal int) (line, signalLine, hist []float64) {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	line = nans(len(values))
	for i := range values {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}

	signalLine = nans(len(values))
	hist = nans(len(values))
	if slow-1 >= len(values) {
		return line, signalLine, hist
	}
	// Signal is an EMA over the defined portion of the line.
	defined := line[slow-1:]
	sig := EMA(defined, signal)
	for i, v := range sig {
		signalLine[slow-1+i] = v
	}
	for i := range values {
		if !math.IsNaN(line[i]) && !math.IsNaN(signalLine[i]) {
			hist[i] = line[i] - signalLine[i]
		}
	}
	return line, signalLine, hist
}

// Bollinger returns upper, middle (SMA), and lower bands.
func Bollinger(values []float64, period int, stddev float64) (upper, middle, lower []float64) {
	middle = SMA(values, period)
	upper = nans(len(values))
	lower = nans(len(values))
	if period <= 0 || len(values) < period {
		return upper, middle, lower
	}
	for i := period - 1; i < len(values); i++ {
		mean := middle[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + stddev*sd
		lower[i] = mean - stddev*sd
	}
	return upper, middle, lower
}

// WindowAll slices every array to the first n positions.
func WindowAll(indicators map[string][]float64, n int) map[string][]float64 {
	out := make(map[string][]float64, len(indicators))
	for name, arr := range indicators {
		if n > len(arr) {
			n = len(arr)
		}
		out[name] = arr[:n]
	}
	return out
}
