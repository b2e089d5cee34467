package indicator

// SMA returns the mean of the last period prices, or 0 when there are fewer
// than period prices.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 || period < 1 || len(prices) < period {
		return 0
	}
	return mean(prices[len(prices)-period:])
}

// SMASeries returns one mean per full window of period prices. Output index i
// corresponds to input index i+period-1.
func SMASeries(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return []float64{}
	}
	sma := make([]float64, 0, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		sma = append(sma, mean(prices[i-period+1:i+1]))
	}
	return sma
}

func mean(window []float64) float64 {
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}
