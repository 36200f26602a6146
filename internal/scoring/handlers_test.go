package scoring

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletrisk/internal/credit"
	"github.com/mbd888/walletrisk/internal/feed"
	"github.com/mbd888/walletrisk/internal/risk"
)

func setupRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v1 := r.Group("/v1")
	NewHandler(svc).RegisterRoutes(v1)
	credit.NewHandler(svc, credit.NewMemoryStore(0)).RegisterRoutes(v1)
	risk.NewHandler(svc, risk.NewMemoryStore()).RegisterRoutes(v1)
	return r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Evaluate(t *testing.T) {
	r := setupRouter(newService(botHistory()).WithOracle(calmOracle(), ""))

	w := do(r, http.MethodGet, "/v1/wallets/"+wallet, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Evaluation Evaluation `json:"evaluation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, wallet, resp.Evaluation.Address)
	assert.Equal(t, 120, resp.Evaluation.Features.TxCount)
	require.NotNil(t, resp.Evaluation.Fraud)
	assert.True(t, resp.Evaluation.Fraud.Flagged)
}

func TestHandler_InvalidAddressIs400(t *testing.T) {
	r := setupRouter(newService(feed.NewMemoryFeed()))

	for _, path := range []string{
		"/v1/wallets/0x1234",
		"/v1/wallets/0x1234/features",
		"/v1/wallets/0x1234/score",
		"/v1/wallets/0x1234/fraud",
	} {
		w := do(r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, w.Body.String(), `"invalid_address"`, path)
	}
}

func TestHandler_FeedDownIs500(t *testing.T) {
	r := setupRouter(newService(brokenFeed{}))
	w := do(r, http.MethodGet, "/v1/wallets/"+wallet, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestHandler_Features(t *testing.T) {
	r := setupRouter(newService(botHistory()))
	w := do(r, http.MethodGet, "/v1/wallets/"+wallet+"/features", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report FeatureReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 120, report.Transactions)
	assert.Equal(t, 0.5, report.Features.FailureRate)
}

func TestHandler_ScoreAndFraudViaService(t *testing.T) {
	r := setupRouter(newService(feed.NewMemoryFeed()).WithOracle(calmOracle(), ""))

	w := do(r, http.MethodGet, "/v1/wallets/"+wallet+"/score", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"riskBand":"medium"`)

	w = do(r, http.MethodGet, "/v1/wallets/"+wallet+"/fraud", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"riskLevel":"low"`)
}

func TestHandler_EvaluateBatch(t *testing.T) {
	r := setupRouter(newService(botHistory()).WithOracle(calmOracle(), ""))

	w := do(r, http.MethodPost, "/v1/wallets/evaluate", BatchRequest{Addresses: []string{wallet, peer}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results []BatchResult `json:"results"`
		Count   int           `json:"count"`
		Failed  int           `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, peer, resp.Results[1].Address)
}

func TestHandler_EvaluateBatchValidation(t *testing.T) {
	r := setupRouter(newService(feed.NewMemoryFeed()))

	w := do(r, http.MethodPost, "/v1/wallets/evaluate", BatchRequest{Addresses: []string{wallet, "bad"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "addresses[1]")

	w = do(r, http.MethodPost, "/v1/wallets/evaluate", BatchRequest{Addresses: []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/v1/wallets/evaluate", BatchRequest{Addresses: make([]string, MaxBatchSize+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/wallets/evaluate", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Invalidate(t *testing.T) {
	f := &countingFeed{Feed: feed.NewMemoryFeed()}
	r := setupRouter(newService(f))

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/wallets/"+wallet+"/score", nil).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/wallets/"+wallet+"/score", nil).Code)
	assert.Equal(t, int32(1), f.calls.Load())

	w := do(r, http.MethodPost, "/v1/wallets/"+wallet+"/invalidate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"invalidated":true`)

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/wallets/"+wallet+"/score", nil).Code)
	assert.Equal(t, int32(2), f.calls.Load())

	w = do(r, http.MethodPost, "/v1/wallets/0xnope/invalidate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
