package indicator

import "math"

// neutralRSI is returned by RSI when the series is too short.
const neutralRSI = 50.0

// RSI returns the Relative Strength Index of the last period price changes,
// averaged without smoothing. It returns 50 when fewer than period+1 prices
// are given, so a caller cannot tell a short series from a balanced market
// without checking len(prices) itself. A window with no losses reads 100.
func RSI(prices []float64, period int) float64 {
	if period < 1 || len(prices) < period+1 {
		return neutralRSI
	}
	changes := priceChanges(prices)
	if len(changes) < period {
		return neutralRSI
	}
	avgGain, avgLoss := averageGainLoss(changes[len(changes)-period:], period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSISeries returns the Wilder-smoothed RSI for every price from index period
// onwards. The first value uses the plain average of the first period changes.
func RSISeries(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period+1 {
		return []float64{}
	}
	changes := priceChanges(prices)
	rsi := make([]float64, 0, len(changes)-period+1)

	avgGain, avgLoss := averageGainLoss(changes[:period], period)
	rsi = append(rsi, rsiFromAverages(avgGain, avgLoss))

	p := float64(period)
	for _, change := range changes[period:] {
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		rsi = append(rsi, rsiFromAverages(avgGain, avgLoss))
	}
	return rsi
}

// rsiFromAverages uses MaxFloat64 as the relative strength when there are no
// losses, which yields exactly 100.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	rs := math.MaxFloat64
	if avgLoss != 0 {
		rs = avgGain / avgLoss
	}
	return 100 - (100 / (1 + rs))
}

func priceChanges(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	changes := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i] - prices[i-1]
	}
	return changes
}

func averageGainLoss(changes []float64, period int) (avgGain, avgLoss float64) {
	for _, change := range changes {
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	return avgGain / float64(period), avgLoss / float64(period)
}
