package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},
		{"0x0000000000000000000000000000000000000000", true},
		{"1234567890123456789012345678901234567890", false},
		{"0x12345678901234567890123456789012345678", false},
		{"0x123456789012345678901234567890123456789012", false},
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},
		{"", false},
		{"0x", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.valid, IsAddress(tc.addr), tc.addr)
	}
}

func TestValidate_CollectsInOrder(t *testing.T) {
	errs := Validate(
		Required("addresses[0]", "0x1234567890123456789012345678901234567890"),
		Address("addresses[0]", "0x1234567890123456789012345678901234567890"),
	)
	assert.Empty(t, errs)

	errs = Validate(
		Required("addresses[0]", "  "),
		Address("addresses[1]", "vitalik.eth"),
	)
	require.Len(t, errs, 2)
	assert.Equal(t, "addresses[0]", errs[0].Field)
	assert.Equal(t, "addresses[1]", errs[1].Field)
	assert.Equal(t, "addresses[0]: is required", errs.Error())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		value string
		want  string
		ok    bool
	}{
		{"0", "0", true},
		{"25000", "25000", true},
		{"0.50", "0.5", true},
		{"1.000000000000000001", "1.000000000000000001", true},
		{" 100 ", "100", true},
		{"1.0000000000000000001", "", false},
		{"", "", false},
		{".5", "", false},
		{"1.", "", false},
		{"1e3", "", false},
		{"+1", "", false},
		{"-1", "", false},
		{"1.2.3", "", false},
		{"abc", "", false},
	}
	for _, tc := range tests {
		d, fe := ParseAmount("stakedAmount", tc.value)
		if !tc.ok {
			require.NotNil(t, fe, tc.value)
			assert.Equal(t, "stakedAmount", fe.Field)
			continue
		}
		require.Nil(t, fe, tc.value)
		assert.Equal(t, tc.want, d.String(), tc.value)
	}
}

func TestCount(t *testing.T) {
	assert.Nil(t, Count("addresses", 1, 1, 100)())
	assert.Nil(t, Count("addresses", 100, 1, 100)())
	assert.NotNil(t, Count("addresses", 0, 1, 100)())

	fe := Count("addresses", 101, 1, 100)()
	require.NotNil(t, fe)
	assert.Equal(t, "must contain between 1 and 100 entries", fe.Message)
}

func TestAddressParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/wallets/:address", AddressParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		path string
		code int
	}{
		{"/wallets/0xabcdefABCDEF1234567890123456789012345678", http.StatusOK},
		{"/wallets/0x1234", http.StatusBadRequest},
		{"/wallets/vitalik.eth", http.StatusBadRequest},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.code, w.Code, tc.path)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(16))
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"addresses":["0x0000000000000000000000000000000000000000"]}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
