package features

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletrisk/internal/chain"
)

const (
	subject = "0x1111000000000000000000000000000000000001"
	peerA   = "0xaaaa000000000000000000000000000000000002"
	peerB   = "0xbbbb000000000000000000000000000000000003"
	peerC   = "0xcccc000000000000000000000000000000000004"
	usdc    = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	nft     = "0xdddd000000000000000000000000000000000005"
	router  = "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"
	aave    = "0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2"
)

// Monday, 2024-01-01 10:00 UTC.
var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func tx(i int, from, to string, at time.Time) chain.Transaction {
	return chain.Transaction{
		Hash:           fmt.Sprintf("0x%064x", i),
		From:           from,
		To:             to,
		Value:          decimal.NewFromInt(1),
		GasUsed:        21000,
		GasPrice:       decimal.NewFromInt(20_000_000_000),
		Status:         chain.StatusSuccess,
		BlockTimestamp: at,
	}
}

func transfer(token string, typ chain.TokenType, amount int64, at time.Time) chain.TokenTransfer {
	return chain.TokenTransfer{
		TokenAddress:   token,
		TokenType:      typ,
		From:           peerA,
		To:             subject,
		Amount:         decimal.NewFromInt(amount),
		BlockTimestamp: at,
	}
}

func newExtractor() *Extractor {
	return NewExtractor(DefaultTables())
}

func TestExtractEmptyReturnsDefault(t *testing.T) {
	v := newExtractor().Extract(nil, nil)
	assert.Equal(t, Default(), v)
	assert.Equal(t, 0.5, v.TxRegularity)
	assert.Equal(t, 1.0, v.ActivityConsistency)
	require.NoError(t, v.Validate())
}

func TestTransactionPatterns(t *testing.T) {
	txs := make([]chain.Transaction, 4)
	for i := range txs {
		txs[i] = tx(i, subject, peerA, t0.Add(time.Duration(i)*time.Hour))
		txs[i].GasUsed = 100000
	}
	txs[3].Status = chain.StatusFailed

	v := newExtractor().ExtractFor(subject, txs, nil)

	assert.Equal(t, 4, v.TxCount)
	assert.InDelta(t, 4.0, v.TxFrequencyDaily, 1e-9, "span under a day counts as one day")
	assert.InDelta(t, 1.0, v.TxRegularity, 1e-9)
	assert.InDelta(t, 1.25, v.TimeOfDayVariance, 1e-9)
	assert.Equal(t, 0.0, v.WeekendRatio)
	assert.InDelta(t, 0.5, v.GasEfficiency, 1e-9)
	assert.InDelta(t, 0.25, v.FailureRate, 1e-9)
}

func TestRegularityNeedsThreeIntervals(t *testing.T) {
	txs := []chain.Transaction{
		tx(1, subject, peerA, t0),
		tx(2, subject, peerA, t0.Add(time.Hour)),
		tx(3, subject, peerA, t0.Add(5*time.Hour)),
	}
	v := newExtractor().ExtractFor(subject, txs, nil)
	assert.Equal(t, NeutralRegularity, v.TxRegularity)
}

func TestWeekendRatio(t *testing.T) {
	saturday := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	txs := []chain.Transaction{
		tx(1, subject, peerA, t0),
		tx(2, subject, peerA, saturday),
	}
	v := newExtractor().ExtractFor(subject, txs, nil)
	assert.InDelta(t, 0.5, v.WeekendRatio, 1e-9)
}

func TestTokenHoldings(t *testing.T) {
	transfers := []chain.TokenTransfer{
		transfer(nft, chain.TokenERC721, 1, t0),
		transfer(usdc, chain.TokenERC20, 10, t0.Add(time.Hour)),
		transfer(usdc, chain.TokenERC20, 10, t0.Add(2*time.Hour)),
		transfer(usdc, chain.TokenERC20, 10, t0.Add(3*time.Hour)),
	}

	v := newExtractor().ExtractFor(subject, nil, transfers)

	assert.Equal(t, 2, v.UniqueTokens)
	assert.Equal(t, 1, v.ERC20Count)
	assert.Equal(t, 1, v.ERC721Count)
	assert.InDelta(t, -(0.25*math.Log(0.25) + 0.75*math.Log(0.75)), v.TokenDiversity, 1e-9)
	assert.InDelta(t, 0.25, v.TokenConcentration, 1e-9)
	assert.InDelta(t, 0.5, v.PortfolioStability, 1e-9)
	assert.InDelta(t, 0.75, v.StablecoinRatio, 1e-9)
}

func TestSingleTokenIsFullyConcentrated(t *testing.T) {
	transfers := []chain.TokenTransfer{
		transfer(usdc, chain.TokenERC20, 10, t0),
		transfer(usdc, chain.TokenERC20, 10, t0.Add(time.Hour)),
	}
	v := newExtractor().ExtractFor(subject, nil, transfers)
	assert.Equal(t, 1.0, v.TokenConcentration)
	assert.Equal(t, 0.0, v.TokenDiversity)
}

func TestDeFiInteractions(t *testing.T) {
	swap := tx(1, subject, router, t0)
	swap.MethodID = "0x38ed1739"
	deposit := tx(2, subject, aave, t0.Add(time.Hour))
	deposit.ContractAddress = aave
	plain := tx(3, subject, peerA, t0.Add(2*time.Hour))

	v := newExtractor().ExtractFor(subject, []chain.Transaction{swap, deposit, plain}, nil)

	assert.Equal(t, 1, v.DEXInteractions)
	assert.Equal(t, 0, v.LiquidityInteractions)
	assert.Equal(t, 1, v.YieldInteractions)
	assert.Equal(t, 2, v.UniqueProtocols)
	assert.InDelta(t, 2.0/3.0, v.DeFiActivityRatio, 1e-9)
}

func TestCustomTablesChangeClassification(t *testing.T) {
	tables := DefaultTables()
	tables.DEXMethods = nil
	call := tx(1, subject, peerA, t0)
	call.MethodID = "0x38ed1739"

	v := NewExtractor(tables).ExtractFor(subject, []chain.Transaction{call}, nil)
	assert.Equal(t, 0, v.DEXInteractions)
	assert.Equal(t, 0.0, v.DeFiActivityRatio)
}

func TestNetworkFeatures(t *testing.T) {
	txs := []chain.Transaction{
		tx(1, subject, peerA, t0),
		tx(2, peerA, subject, t0.Add(time.Hour)),
		tx(3, subject, peerB, t0.Add(2*time.Hour)),
		tx(4, subject, peerA, t0.Add(3*time.Hour)),
		tx(5, peerC, subject, t0.Add(4*time.Hour)),
	}
	txs[0].ContractAddress = router

	v := newExtractor().ExtractFor(subject, txs, nil)

	assert.Equal(t, 1, v.UniqueContracts)
	assert.Equal(t, 3, v.UniqueCounterparties)
	assert.InDelta(t, 1.0/3.0, v.AddressClusteringScore, 1e-9)
	assert.InDelta(t, 4.0/12.0, v.GraphDensity, 1e-9)
	assert.InDelta(t, 0.5, v.Reciprocity, 1e-9)
}

func TestTemporalFeatures(t *testing.T) {
	txs := []chain.Transaction{
		tx(1, subject, peerA, t0),
		tx(2, subject, peerA, t0.Add(24*time.Hour)),
		tx(3, subject, peerA, t0.Add(48*time.Hour)),
		tx(4, subject, peerA, t0.Add(9*24*time.Hour)),
	}

	v := newExtractor().ExtractFor(subject, txs, nil)

	assert.InDelta(t, 9.0, v.AccountAgeDays, 1e-9)
	assert.Equal(t, 4, v.ActiveDays)
	assert.Equal(t, 3, v.ActivityStreakDays)
	assert.InDelta(t, 7.0, v.MaxInactivityDays, 1e-9)
	assert.InDelta(t, 3.0, v.AvgInactivityDays, 1e-9)
	assert.InDelta(t, 1.0, v.ActivityConsistency, 1e-9)
}

func TestActivityConsistency(t *testing.T) {
	txs := []chain.Transaction{
		tx(1, subject, peerA, t0),
		tx(2, subject, peerA, t0.Add(time.Hour)),
		tx(3, subject, peerA, t0.Add(2*time.Hour)),
		tx(4, subject, peerA, t0.Add(24*time.Hour)),
	}
	v := newExtractor().ExtractFor(subject, txs, nil)
	// daily counts [3,1]: mean 2, stdev 1
	assert.InDelta(t, 1/(1+0.5), v.ActivityConsistency, 1e-9)

	single := newExtractor().ExtractFor(subject, txs[:3], nil)
	assert.Equal(t, 1.0, single.ActivityConsistency)
}

func TestFinancialAndBehavioral(t *testing.T) {
	values := []int64{1, 2, 3, 10}
	hours := []int{10, 10, 15, 10}
	txs := make([]chain.Transaction, len(values))
	for i, val := range values {
		at := time.Date(2024, 1, 1+i, hours[i], 0, 0, 0, time.UTC)
		txs[i] = tx(i, peerA, subject, at)
		txs[i].Value = decimal.NewFromInt(val)
	}
	txs[3].From, txs[3].To = subject, peerA
	txs[3].ContractAddress = router
	transfers := []chain.TokenTransfer{
		transfer(usdc, chain.TokenERC20, 5, t0),
		transfer(nft, chain.TokenERC721, 5, t0),
	}

	v := newExtractor().ExtractFor(subject, txs, transfers)

	assert.InDelta(t, 16.0, v.TotalVolume, 1e-9)
	assert.InDelta(t, 4.0, v.AvgTxValue, 1e-9)
	assert.InDelta(t, 10.0, v.MaxTxValue, 1e-9)
	assert.InDelta(t, math.Sqrt(12.5)/4, v.PortfolioVolatility, 1e-9)
	assert.InDelta(t, 0.5, v.DiversificationIndex, 1e-9)
	assert.InDelta(t, 6.0/16.0, v.InflowRatio, 1e-9)

	assert.InDelta(t, 20.0, v.AvgGasPriceGwei, 1e-9)
	assert.InDelta(t, 10.0/23.0, v.PreferredHour, 1e-9)
	assert.InDelta(t, 0.25, v.ContractInteractionRatio, 1e-9)
	assert.InDelta(t, (4-2.5)/4.0, v.ValueSkew, 1e-9)
}

func TestInferSubject(t *testing.T) {
	txs := []chain.Transaction{
		tx(1, subject, peerA, t0),
		tx(2, peerB, subject, t0),
		tx(3, subject, peerC, t0),
	}
	assert.Equal(t, subject, InferSubject(txs, nil))
	assert.Equal(t, "", InferSubject(nil, nil))

	// Tie between peerA and subject resolves lexicographically.
	assert.Equal(t, subject, InferSubject(txs[:1], nil))
}

func TestExtractIsDeterministic(t *testing.T) {
	txs, transfers := randomHistory(rand.New(rand.NewSource(7)), 200)
	e := newExtractor()
	first := e.Extract(txs, transfers)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Extract(txs, transfers))
	}
}

func TestFeatureBoundsHoldForRandomHistories(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := newExtractor()
	for i := 0; i < 200; i++ {
		txs, transfers := randomHistory(rng, rng.Intn(60))
		v := e.Extract(txs, transfers)
		require.NoError(t, v.Validate(), "history %d", i)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	v := Default()
	v.FailureRate = 1.5
	assert.Error(t, v.Validate())

	v = Default()
	v.TxCount = -1
	assert.Error(t, v.Validate())

	v = Default()
	v.TotalVolume = math.NaN()
	assert.Error(t, v.Validate())
}

func randomHistory(rng *rand.Rand, n int) ([]chain.Transaction, []chain.TokenTransfer) {
	peers := []string{peerA, peerB, peerC, router, aave}
	methods := []string{"", "", "0x38ed1739", "0xe8e33700", "0xb6b55f25", "0xa9059cbb"}
	statuses := []chain.TxStatus{chain.StatusSuccess, chain.StatusSuccess, chain.StatusFailed, chain.StatusPending}

	at := t0
	txs := make([]chain.Transaction, 0, n)
	transfers := make([]chain.TokenTransfer, 0, n)
	for i := 0; i < n; i++ {
		at = at.Add(time.Duration(rng.Intn(72*3600)) * time.Second)
		peer := peers[rng.Intn(len(peers))]
		t := tx(i, subject, peer, at)
		if rng.Intn(2) == 0 {
			t.From, t.To = peer, subject
		}
		t.Value = decimal.NewFromFloat(rng.Float64() * 100)
		t.GasUsed = uint64(rng.Intn(500000))
		t.Status = statuses[rng.Intn(len(statuses))]
		t.MethodID = methods[rng.Intn(len(methods))]
		if t.MethodID != "" {
			t.ContractAddress = peer
		}
		txs = append(txs, t)

		if rng.Intn(3) == 0 {
			tok := []string{usdc, nft, peerC}[rng.Intn(3)]
			typ := chain.TokenERC20
			if tok == nft {
				typ = chain.TokenERC721
			}
			transfers = append(transfers, transfer(tok, typ, int64(rng.Intn(1000)), at))
		}
	}
	return txs, transfers
}
