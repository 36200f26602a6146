package features

import "github.com/mbd888/walletrisk/internal/chain"

// financial fills volume, dispersion, diversification and inflow features.
func (e *Extractor) financial(v *Vector, subject string, txs []chain.Transaction, transfers []chain.TokenTransfer) {
	if len(txs) > 0 {
		values := make([]float64, len(txs))
		var total, inflow, maxValue float64
		for i, tx := range txs {
			val := tx.Value.InexactFloat64()
			values[i] = val
			total += val
			if val > maxValue {
				maxValue = val
			}
			if subject != "" && tx.To == subject && tx.From != subject {
				inflow += val
			}
		}
		v.TotalVolume = total
		v.AvgTxValue = total / float64(len(txs))
		v.MaxTxValue = maxValue
		if len(values) > 1 && v.AvgTxValue > 0 {
			v.PortfolioVolatility = stdev(values) / v.AvgTxValue
		}
		if total > 0 {
			v.InflowRatio = clamp01(inflow / total)
		}
	}

	if len(transfers) == 0 {
		return
	}
	perToken := make(map[string]float64)
	for _, tr := range transfers {
		perToken[tr.TokenAddress] += tr.Amount.InexactFloat64()
	}
	var total float64
	tokens := sortedKeys(perToken)
	for _, tok := range tokens {
		total += perToken[tok]
	}
	if total <= 0 {
		return
	}
	var hhi float64
	for _, tok := range tokens {
		share := perToken[tok] / total
		hhi += share * share
	}
	v.DiversificationIndex = clamp01(1 - hhi)
}
