package indicator

import (
	"fmt"
	"math"

	"montewalk/internal/domain"
)

// Composite signal parameters.
const (
	RSIPeriod    = 14
	MACDFast     = 12
	MACDSlow     = 26
	MACDSignal   = 9
	TrendWindow  = 50
	LongWindow   = 200
	oversold     = 30
	overbought   = 70
	strongCutoff = 2
)

// Summary is the composite technical verdict at the last bar.
type Summary struct {
	Score      int               `json:"score"`
	Signal     domain.SignalType `json:"signal"`
	Strong     bool              `json:"strong"`
	Verdict    string            `json:"verdict"`
	Price      float64           `json:"price"`
	RSI        float64           `json:"rsi"`
	MACD       float64           `json:"macd"`
	MACDSignal float64           `json:"macd_signal"`
	SMA50      float64           `json:"sma_50"`
	SMA200     *float64          `json:"sma_200,omitempty"`
	Reasons    []string          `json:"reasons"`
}

// Summarize scores four rules at the last close, each worth +1 or -1:
// RSI(14) oversold/overbought (0 in between), MACD above/below its signal
// line, close above/below SMA(50) and close above/below SMA(200). The
// SMA(200) rule contributes 0 with fewer than 200 closes. Score >= 1 is BUY,
// <= -1 SELL, 0 NEUTRAL; |score| >= 2 is strong.
func Summarize(closes []float64) (Summary, error) {
	const sop = "indicator.Summarize"
	n := len(closes)
	if n == 0 {
		return Summary{}, domain.InsufficientData(sop, "", "no closes")
	}

	rsi, err := RSI(closes, RSIPeriod)
	if err != nil {
		return Summary{}, err
	}
	macd, err := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	if err != nil {
		return Summary{}, err
	}
	sma50, err := SMA(closes, TrendWindow)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Price:      closes[n-1],
		RSI:        Last(rsi),
		MACD:       Last(macd.MACD),
		MACDSignal: Last(macd.Signal),
		SMA50:      Last(sma50),
	}
	switch {
	case !Defined(s.RSI):
		return Summary{}, domain.InsufficientData(sop, "", "RSI(%d) undefined with %d closes", RSIPeriod, n)
	case !Defined(s.MACDSignal):
		return Summary{}, domain.InsufficientData(sop, "", "MACD signal undefined with %d closes", n)
	case !Defined(s.SMA50):
		return Summary{}, domain.InsufficientData(sop, "", "SMA(%d) undefined with %d closes", TrendWindow, n)
	}

	sma200 := math.NaN()
	if n >= LongWindow {
		long, err := SMA(closes, LongWindow)
		if err != nil {
			return Summary{}, err
		}
		sma200 = Last(long)
		s.SMA200 = &sma200
	}
	s.Score, s.Reasons = evaluate(s.Price, s.RSI, s.MACD, s.MACDSignal, s.SMA50, sma200, true)

	s.Signal = signalFor(s.Score)
	s.Strong = s.Score >= strongCutoff || s.Score <= -strongCutoff
	s.Verdict = string(s.Signal)
	if s.Strong {
		s.Verdict = "STRONG " + s.Verdict
	}
	return s, nil
}

func signalFor(score int) domain.SignalType {
	switch {
	case score >= 1:
		return domain.SignalTypeBuy
	case score <= -1:
		return domain.SignalTypeSell
	default:
		return domain.SignalTypeNeutral
	}
}

// evaluate applies the four scoring rules. A NaN sma200 scores 0.
func evaluate(price, rsi, macd, macdSignal, sma50, sma200 float64, explain bool) (int, []string) {
	var (
		score   int
		reasons []string
	)
	note := func(format string, args ...any) {
		if explain {
			reasons = append(reasons, fmt.Sprintf(format, args...))
		}
	}

	switch {
	case rsi < oversold:
		score++
		note("RSI is oversold (%.2f)", rsi)
	case rsi > overbought:
		score--
		note("RSI is overbought (%.2f)", rsi)
	default:
		note("RSI is neutral (%.2f)", rsi)
	}

	if macd > macdSignal {
		score++
		note("MACD above signal line (bullish)")
	} else {
		score--
		note("MACD at or below signal line (bearish)")
	}

	if price > sma50 {
		score++
		note("price above 50-day SMA (bullish trend)")
	} else {
		score--
		note("price at or below 50-day SMA (bearish trend)")
	}

	switch {
	case math.IsNaN(sma200):
		note("200-day SMA unavailable (insufficient history)")
	case price > sma200:
		score++
		note("price above 200-day SMA (long-term bullish)")
	default:
		score--
		note("price at or below 200-day SMA (long-term bearish)")
	}
	return score, reasons
}

// Score is the composite verdict at one bar.
type Score struct {
	Score   int
	Signal  domain.SignalType
	Defined bool
}

// Scores evaluates the composite rules at every bar in one pass. Bars where
// RSI, the MACD signal line or SMA(50) is undefined are marked undefined.
func Scores(closes []float64) ([]Score, error) {
	rsi, err := RSI(closes, RSIPeriod)
	if err != nil {
		return nil, err
	}
	macd, err := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	if err != nil {
		return nil, err
	}
	sma50, err := SMA(closes, TrendWindow)
	if err != nil {
		return nil, err
	}
	sma200, err := SMA(closes, LongWindow)
	if err != nil {
		return nil, err
	}

	out := make([]Score, len(closes))
	for i, price := range closes {
		if !Defined(rsi[i]) || !Defined(macd.Signal[i]) || !Defined(sma50[i]) {
			continue
		}
		sc, _ := evaluate(price, rsi[i], macd.MACD[i], macd.Signal[i], sma50[i], sma200[i], false)
		out[i] = Score{Score: sc, Signal: signalFor(sc), Defined: true}
	}
	return out, nil
}
