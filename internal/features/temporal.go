package features

import (
	"sort"
	"time"

	"github.com/mbd888/walletrisk/internal/chain"
)

const day = 24 * time.Hour

// temporal fills age, streak, inactivity and consistency features.
func (e *Extractor) temporal(v *Vector, txs []chain.Transaction) {
	n := len(txs)
	if n == 0 {
		return
	}

	first, last := txs[0].BlockTimestamp, txs[n-1].BlockTimestamp
	v.AccountAgeDays = last.Sub(first).Seconds() / secondsPerDay

	perDay := make(map[int64]int)
	for _, tx := range txs {
		perDay[tx.BlockTimestamp.UTC().Truncate(day).Unix()]++
	}
	days := make([]int64, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	v.ActiveDays = len(days)

	streak, longest := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i]-days[i-1] <= int64(day/time.Second) {
			streak++
		} else {
			streak = 1
		}
		if streak > longest {
			longest = streak
		}
	}
	v.ActivityStreakDays = longest

	if n > 1 {
		gaps := make([]float64, 0, n-1)
		var maxGap float64
		for i := 1; i < n; i++ {
			g := txs[i].BlockTimestamp.Sub(txs[i-1].BlockTimestamp).Seconds() / secondsPerDay
			gaps = append(gaps, g)
			if g > maxGap {
				maxGap = g
			}
		}
		v.MaxInactivityDays = maxGap
		v.AvgInactivityDays = mean(gaps)
	}

	v.ActivityConsistency = NeutralConsistency
	if len(days) > 1 {
		counts := make([]float64, len(days))
		for i, d := range days {
			counts[i] = float64(perDay[d])
		}
		if c, ok := inverseCV(counts); ok {
			v.ActivityConsistency = clamp01(c)
		}
	}
}
