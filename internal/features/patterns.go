package features

import (
	"time"

	"github.com/mbd888/walletrisk/internal/chain"
)

// transactionPatterns fills count, frequency, regularity, hour variance,
// weekend ratio, gas efficiency and failure rate.
func (e *Extractor) transactionPatterns(v *Vector, txs []chain.Transaction) {
	n := len(txs)
	if n == 0 {
		return
	}
	v.TxCount = n

	spanDays := txs[n-1].BlockTimestamp.Sub(txs[0].BlockTimestamp).Seconds() / secondsPerDay
	if spanDays < 1 {
		spanDays = 1
	}
	v.TxFrequencyDaily = float64(n) / spanDays

	intervals := make([]float64, 0, n)
	for i := 1; i < n; i++ {
		intervals = append(intervals, txs[i].BlockTimestamp.Sub(txs[i-1].BlockTimestamp).Seconds())
	}
	v.TxRegularity = NeutralRegularity
	if len(intervals) >= minRegularityIntervals {
		if r, ok := inverseCV(intervals); ok {
			v.TxRegularity = clamp01(r)
		}
	}

	hours := make([]float64, n)
	var weekend, failed int
	var gasUsed float64
	for i, tx := range txs {
		ts := tx.BlockTimestamp.UTC()
		hours[i] = float64(ts.Hour())
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		if tx.Status == chain.StatusFailed {
			failed++
		}
		gasUsed += float64(tx.GasUsed)
	}
	v.TimeOfDayVariance = variance(hours)
	v.WeekendRatio = ratio(weekend, n)
	v.GasEfficiency = clamp01(1 / (1 + (gasUsed/float64(n))/gasEfficiencyScale))
	v.FailureRate = ratio(failed, n)
}
