package risk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := &FraudAssessment{Address: strings.ToUpper(subject), FraudRisk: 20, RiskLevel: LevelLow, Indicators: []string{}}
	require.NoError(t, s.Record(ctx, first))
	assert.True(t, strings.HasPrefix(first.ID, "fra_"))
	assert.False(t, first.AssessedAt.IsZero())

	second := &FraudAssessment{Address: subject, FraudRisk: 80, RiskLevel: LevelHigh, Flagged: true, Indicators: []string{IndicatorSybil}}
	require.NoError(t, s.Record(ctx, second))

	history, err := s.ListByAddress(ctx, subject, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 80.0, history[0].FraudRisk, "newest first")

	history[0].Indicators[0] = "mutated"
	again, _ := s.ListByAddress(ctx, subject, 1)
	require.Len(t, again, 1)
	assert.Equal(t, IndicatorSybil, again[0].Indicators[0])

	flagged, err := s.ListFlagged(ctx, 10)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, second.ID, flagged[0].ID)

	none, err := s.ListByAddress(ctx, "0xnobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

type fakeSource struct {
	a   *FraudAssessment
	err error
}

func (f *fakeSource) Assess(_ context.Context, address string) (*FraudAssessment, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.a
	cp.Address = address
	return &cp, nil
}

func setupRouter(src Source, store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(src, store).RegisterRoutes(r.Group("/v1"))
	return r
}

func TestHandler_GetAssessment(t *testing.T) {
	src := &fakeSource{a: &FraudAssessment{FraudRisk: 32, RiskLevel: LevelLow, SybilScore: 0.8, Indicators: []string{IndicatorSybil}}}
	r := setupRouter(src, NewMemoryStore())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/"+subject+"/fraud", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Assessment FraudAssessment `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, subject, resp.Assessment.Address)
	assert.Equal(t, 32.0, resp.Assessment.FraudRisk)
	assert.Equal(t, LevelLow, resp.Assessment.RiskLevel)
}

func TestHandler_GetAssessmentError(t *testing.T) {
	r := setupRouter(&fakeSource{err: errors.New("feed exploded")}, NewMemoryStore())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/"+subject+"/fraud", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_ListFlaggedAndHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, &FraudAssessment{Address: subject, FraudRisk: 90, RiskLevel: LevelHigh, Flagged: true, AssessedAt: time.Now()}))
	require.NoError(t, store.Record(ctx, &FraudAssessment{Address: subject, FraudRisk: 10, RiskLevel: LevelLow}))
	r := setupRouter(&fakeSource{}, store)

	var resp struct {
		Assessments []FraudAssessment `json:"assessments"`
		Count       int               `json:"count"`
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/fraud/flagged", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/"+subject+"/fraud/history?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 10.0, resp.Assessments[0].FraudRisk)
}
