// Package scoring orchestrates wallet evaluation.
//
// An evaluation gathers history, oracle volatility and the staking position
// concurrently, extracts the feature vector once, and feeds that single
// immutable vector to both the credit scorer and the fraud analyzer. Only the
// history feed is essential: oracle and staking failures degrade to defaults.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mbd888/walletrisk/internal/chain"
	"github.com/mbd888/walletrisk/internal/credit"
	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/feed"
	"github.com/mbd888/walletrisk/internal/logging"
	"github.com/mbd888/walletrisk/internal/metrics"
	"github.com/mbd888/walletrisk/internal/oracle"
	"github.com/mbd888/walletrisk/internal/risk"
	"github.com/mbd888/walletrisk/internal/staking"
	"github.com/mbd888/walletrisk/internal/traces"
	"github.com/mbd888/walletrisk/internal/txgraph"
)

var ErrInvalidAddress = errors.New("invalid wallet address")

// AddressError reports a malformed wallet address. It matches
// ErrInvalidAddress and renders as a 400.
type AddressError struct {
	Address string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid wallet address %q", e.Address)
}

func (e *AddressError) Is(target error) bool { return target == ErrInvalidAddress }

func (e *AddressError) HTTPStatus() (int, string) {
	return http.StatusBadRequest, "invalid_address"
}

// DefaultAsset is the oracle asset whose volatility is penalised.
const DefaultAsset = "ethereum"

// DefaultWorkers bounds concurrent evaluations in a batch.
const DefaultWorkers = 8

// MaxBatchSize caps the addresses accepted by one batch evaluation.
const MaxBatchSize = 100

// Evaluation is the full outcome of scoring one wallet.
type Evaluation struct {
	Address          string                `json:"address"`
	Features         features.Vector       `json:"features"`
	Score            credit.ScoreResult    `json:"score"`
	Fraud            *risk.FraudAssessment `json:"fraud"`
	Volatility       float64               `json:"volatility"`
	VolatilitySource string                `json:"volatilitySource"`
	Rejected         int                   `json:"rejectedRecords"`
	EvaluatedAt      time.Time             `json:"evaluatedAt"`
}

// FeatureReport is the extracted vector without scoring.
type FeatureReport struct {
	Address      string          `json:"address"`
	Features     features.Vector `json:"features"`
	Transactions int             `json:"transactions"`
	Transfers    int             `json:"transfers"`
	Rejected     int             `json:"rejectedRecords"`
}

// BatchResult is one address's outcome in a batch evaluation.
type BatchResult struct {
	Address    string      `json:"address"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Service evaluates wallets.
type Service struct {
	feed      feed.Feed
	extractor *features.Extractor
	scorer    *credit.Scorer
	analyzer  *risk.Analyzer

	oracle   oracle.Client
	asset    string
	staking  staking.Adapter
	scores   credit.Store
	audit    risk.Store
	exporter txgraph.Exporter
	workers  int
	now      func() time.Time

	// inflight coalesces concurrent cache-miss evaluations of one wallet.
	inflight singleflight.Group
}

var (
	_ credit.Source = (*Service)(nil)
	_ risk.Source   = (*Service)(nil)
)

// NewService creates a scoring service over a history feed. Without further
// configuration it uses default volatility, treats every wallet as unstaked
// and keeps scores in an in-memory cache.
func NewService(f feed.Feed, extractor *features.Extractor, scorer *credit.Scorer, analyzer *risk.Analyzer) *Service {
	return &Service{
		feed:      f,
		extractor: extractor,
		scorer:    scorer,
		analyzer:  analyzer,
		asset:     DefaultAsset,
		scores:    credit.NewMemoryStore(0),
		audit:     risk.NewMemoryStore(),
		workers:   DefaultWorkers,
		now:       time.Now,
	}
}

// WithOracle sets the volatility oracle and the asset it is queried for.
func (s *Service) WithOracle(c oracle.Client, asset string) *Service {
	s.oracle = c
	if asset != "" {
		s.asset = asset
	}
	return s
}

// WithStaking sets the staking adapter.
func (s *Service) WithStaking(a staking.Adapter) *Service {
	s.staking = a
	return s
}

// WithScoreStore sets the score cache.
func (s *Service) WithScoreStore(store credit.Store) *Service {
	s.scores = store
	return s
}

// WithAuditStore sets where fraud assessments are recorded.
func (s *Service) WithAuditStore(store risk.Store) *Service {
	s.audit = store
	return s
}

// WithExporter sets where transaction graphs of flagged wallets are sent.
func (s *Service) WithExporter(e txgraph.Exporter) *Service {
	s.exporter = e
	return s
}

// WithWorkers bounds batch concurrency.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// Normalize validates an address and returns its canonical form.
func Normalize(address string) (string, error) {
	addr, err := chain.NormalizeAddress(address)
	if err != nil {
		return "", &AddressError{Address: address}
	}
	return addr, nil
}

// Evaluate computes a fresh score and fraud assessment for an address,
// caches the score and records the assessment.
func (s *Service) Evaluate(ctx context.Context, address string) (*Evaluation, error) {
	addr, err := Normalize(address)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithWallet(ctx, addr)
	ctx, span := traces.StartSpan(ctx, "scoring.evaluate", traces.WalletAddr(addr))
	defer span.End()
	timer := time.Now()

	// Taken before any input is read so an invalidation racing this
	// evaluation keeps its score out of the cache.
	epoch, err := s.scores.Epoch(ctx)
	if err != nil {
		logging.L(ctx).Warn("score cache epoch unavailable, result will not be cached", "error", err)
		epoch = -1
	}

	var (
		history feed.History
		quote   oracle.Quote
		pos     staking.Position
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := s.feed.History(gctx, addr)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		history = h
		return nil
	})
	g.Go(func() error {
		quote = oracle.Resolve(gctx, s.oracle, s.asset)
		if quote.Source == oracle.SourceDefault && s.oracle != nil {
			metrics.FallbacksTotal.WithLabelValues("oracle").Inc()
		}
		return nil
	})
	g.Go(func() error {
		pos = s.position(gctx, addr)
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		traces.Fail(span, err)
		return nil, err
	}

	vector := s.extractor.ExtractFor(addr, history.Transactions, history.Transfers)
	score := s.scorer.Score(vector, credit.VolatilityOf(quote.Volatility), pos.Tier, pos.StakedAmount)
	fraud := s.analyzer.Assess(addr, vector, history.Transactions)

	now := s.now().UTC()
	s.persist(ctx, addr, epoch, score, fraud, history, now)

	metrics.EvaluationsTotal.WithLabelValues("ok").Inc()
	metrics.EvaluationDuration.Observe(time.Since(timer).Seconds())
	metrics.CreditScores.Observe(float64(score.Score))
	metrics.RiskBandsTotal.WithLabelValues(credit.BandName(score.RiskBand)).Inc()
	metrics.FraudLevelsTotal.WithLabelValues(string(fraud.RiskLevel)).Inc()
	for range fraud.Fallbacks {
		metrics.FallbacksTotal.WithLabelValues("fraud").Inc()
	}
	span.SetAttributes(
		traces.CreditScore(score.Score),
		traces.RiskBand(score.RiskBand),
		traces.FraudRisk(fraud.FraudRisk),
		traces.Fallbacks(len(fraud.Fallbacks)),
	)

	logging.L(ctx).Info("wallet evaluated",
		"score", score.Score,
		"risk_band", score.RiskBand,
		"fraud_risk", fraud.FraudRisk,
		"flagged", fraud.Flagged,
		"duration_ms", time.Since(timer).Milliseconds(),
	)

	return &Evaluation{
		Address:          addr,
		Features:         vector,
		Score:            score,
		Fraud:            fraud,
		Volatility:       quote.Volatility,
		VolatilitySource: quote.Source,
		Rejected:         history.Rejected,
		EvaluatedAt:      now,
	}, nil
}

// position returns the staking position, degrading to unstaked on failure.
func (s *Service) position(ctx context.Context, addr string) staking.Position {
	if s.staking == nil {
		return staking.None(addr)
	}
	pos, err := s.staking.Position(ctx, addr)
	if errors.Is(err, staking.ErrNotFound) {
		return staking.None(addr)
	}
	if err != nil {
		metrics.FallbacksTotal.WithLabelValues("staking").Inc()
		logging.L(ctx).Warn("staking lookup failed, scoring as unstaked", "error", err)
		return staking.None(addr)
	}
	return pos
}

// persist caches the score, records the assessment and exports the graph of
// flagged wallets. Failures here are logged; the evaluation stands. A
// negative epoch skips the cache.
func (s *Service) persist(ctx context.Context, addr string, epoch int64, score credit.ScoreResult, fraud *risk.FraudAssessment, history feed.History, now time.Time) {
	log := logging.L(ctx)

	if epoch >= 0 {
		err := s.scores.Put(ctx, &credit.Record{Address: addr, Result: score, ComputedAt: now, Epoch: epoch})
		switch {
		case errors.Is(err, credit.ErrSuperseded):
			metrics.ScoreCacheTotal.WithLabelValues("superseded").Inc()
			log.Debug("score not cached, wallet invalidated during evaluation")
		case err != nil:
			log.Warn("failed to cache score", "error", err)
		}
	}

	// Record stamps the ID in place.
	fraud.AssessedAt = now
	if err := s.audit.Record(ctx, fraud); err != nil {
		log.Warn("failed to record fraud assessment", "error", err)
	}

	if fraud.Flagged {
		metrics.FraudFlaggedTotal.Inc()
		log.Warn("wallet flagged for review",
			"fraud_risk", fraud.FraudRisk,
			"indicators", fraud.Indicators,
		)
		if s.exporter != nil {
			if err := s.exporter.Export(ctx, addr, txgraph.FromTransactions(history.Transactions)); err != nil {
				log.Warn("failed to export transaction graph", "error", err)
			}
		}
	}
}

// Score returns the cached score for an address, evaluating it on a miss.
func (s *Service) Score(ctx context.Context, address string) (*credit.Record, error) {
	addr, err := Normalize(address)
	if err != nil {
		return nil, err
	}
	rec, err := s.scores.Get(ctx, addr)
	if err == nil {
		metrics.ScoreCacheTotal.WithLabelValues("hit").Inc()
		return rec, nil
	}
	if !errors.Is(err, credit.ErrScoreNotFound) {
		logging.L(ctx).Warn("score cache read failed", "address", addr, "error", err)
	}
	metrics.ScoreCacheTotal.WithLabelValues("miss").Inc()

	// The evaluation runs detached from any one caller so a waiter giving up
	// does not cancel it for the others.
	detached := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(addr, func() (any, error) {
		// A flight that just landed may have filled the cache.
		if rec, err := s.scores.Get(detached, addr); err == nil {
			return rec, nil
		}
		ev, err := s.Evaluate(detached, addr)
		if err != nil {
			return nil, err
		}
		return &credit.Record{Address: ev.Address, Result: ev.Score, ComputedAt: ev.EvaluatedAt}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			metrics.ScoreCacheTotal.WithLabelValues("coalesced").Inc()
		}
		return res.Val.(*credit.Record), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Assess runs a fresh evaluation and returns its fraud assessment.
func (s *Service) Assess(ctx context.Context, address string) (*risk.FraudAssessment, error) {
	ev, err := s.Evaluate(ctx, address)
	if err != nil {
		return nil, err
	}
	return ev.Fraud, nil
}

// Features extracts the feature vector for an address without scoring it.
func (s *Service) Features(ctx context.Context, address string) (*FeatureReport, error) {
	addr, err := Normalize(address)
	if err != nil {
		return nil, err
	}
	h, err := s.feed.History(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return &FeatureReport{
		Address:      addr,
		Features:     s.extractor.ExtractFor(addr, h.Transactions, h.Transfers),
		Transactions: len(h.Transactions),
		Transfers:    len(h.Transfers),
		Rejected:     h.Rejected,
	}, nil
}

// EvaluateBatch evaluates addresses with bounded concurrency. Results keep
// the input order; a failed address carries its error and does not stop the
// others.
func (s *Service) EvaluateBatch(ctx context.Context, addresses []string) []BatchResult {
	ctx, span := traces.StartSpan(ctx, "scoring.evaluate_batch", traces.BatchSize(len(addresses)))
	defer span.End()

	results := make([]BatchResult, len(addresses))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, addr := range addresses {
		g.Go(func() error {
			results[i].Address = addr
			ev, err := s.Evaluate(ctx, addr)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Address = ev.Address
			results[i].Evaluation = ev
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Invalidate drops cached scores so the next read re-evaluates. Invalid
// addresses are skipped; the count of invalidated addresses is returned.
func (s *Service) Invalidate(ctx context.Context, addresses ...string) (int, error) {
	n := 0
	for _, a := range addresses {
		addr, err := Normalize(a)
		if err != nil {
			continue
		}
		if err := s.scores.Invalidate(ctx, addr); err != nil {
			return n, fmt.Errorf("invalidate %s: %w", addr, err)
		}
		n++
	}
	return n, nil
}
