package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{202, "2xx"},
		{304, "3xx"},
		{400, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	scrape := func() string {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		return w.Body.String()
	}

	body := scrape()
	// Unlabelled gauges and counters are exported at zero.
	for _, name := range []string{"walletrisk_goroutines", "walletrisk_fraud_flagged_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}

	EvaluationsTotal.WithLabelValues("ok").Inc()
	if !strings.Contains(scrape(), `walletrisk_evaluations_total{outcome="ok"}`) {
		t.Error("Expected walletrisk_evaluations_total after incrementing")
	}
}

func TestMiddleware_LabelsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/wallets/:address", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"score": 550})
	})

	route := "/v1/wallets/:address"
	before := counterValue(t, HTTPRequestsTotal, http.MethodGet, route, "2xx")
	beforeMissing := counterValue(t, HTTPRequestsTotal, http.MethodGet, "unmatched", "4xx")

	for _, path := range []string{"/v1/wallets/0xaaa", "/v1/wallets/0xbbb", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := counterValue(t, HTTPRequestsTotal, http.MethodGet, route, "2xx") - before; got != 2 {
		t.Errorf("route counter delta = %v, want 2", got)
	}
	if got := counterValue(t, HTTPRequestsTotal, http.MethodGet, "unmatched", "4xx") - beforeMissing; got != 1 {
		t.Errorf("unmatched counter delta = %v, want 1", got)
	}
}

func TestRegisterDB_ExportsPoolStats(t *testing.T) {
	// sql.Open does not connect, so no database is needed.
	db, err := sql.Open("postgres", "postgres://localhost/walletrisk_metrics?sslmode=disable")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := RegisterDB(db, "metrics_test"); err != nil {
		t.Fatalf("RegisterDB: %v", err)
	}
	if err := RegisterDB(db, "metrics_test"); err != nil {
		t.Errorf("second RegisterDB should be a no-op, got %v", err)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "go_sql_open_connections" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "db_name" && l.GetValue() == "metrics_test" {
					return
				}
			}
		}
	}
	t.Error("go_sql_open_connections{db_name=\"metrics_test\"} not exported")
}
