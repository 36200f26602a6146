package features

import "github.com/mbd888/walletrisk/internal/chain"

// behavioral fills gas price, preferred hour, contract usage and value skew.
func (e *Extractor) behavioral(v *Vector, txs []chain.Transaction) {
	n := len(txs)
	if n == 0 {
		return
	}

	var hourCounts [24]int
	var gasPrice float64
	contractCalls := 0
	values := make([]float64, n)
	for i, tx := range txs {
		gasPrice += tx.GasPrice.InexactFloat64()
		hourCounts[tx.BlockTimestamp.UTC().Hour()]++
		if tx.ContractAddress != "" {
			contractCalls++
		}
		values[i] = tx.Value.InexactFloat64()
	}
	v.AvgGasPriceGwei = gasPrice / float64(n) / weiPerGwei

	preferred := 0
	for h := 1; h < len(hourCounts); h++ {
		if hourCounts[h] > hourCounts[preferred] {
			preferred = h
		}
	}
	v.PreferredHour = float64(preferred) / 23

	v.ContractInteractionRatio = ratio(contractCalls, n)

	if n >= minSkewSamples {
		if m := mean(values); m > 0 {
			v.ValueSkew = clamp((m-median(values))/m, -1, 1)
		}
	}
}
