// Package validation checks wallet API input before it reaches the scoring engine.
package validation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxRequestSize caps request bodies at 1MB.
const MaxRequestSize = 1 << 20

// MaxAmountDecimals is the finest precision an ERC-20 amount can carry.
const MaxAmountDecimals = 18

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects every field that failed a check.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Check inspects one field and returns nil when it is acceptable.
type Check func() *FieldError

// Validate runs every check and gathers the failures in order.
func Validate(checks ...Check) Errors {
	var errs Errors
	for _, check := range checks {
		if fe := check(); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

func Required(field, value string) Check {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return &FieldError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// Address accepts an empty value; pair it with Required when the field is mandatory.
func Address(field, value string) Check {
	return func() *FieldError {
		if value != "" && !IsAddress(value) {
			return &FieldError{Field: field, Message: "must be a wallet address (0x + 40 hex chars)"}
		}
		return nil
	}
}

func Count(field string, n, min, max int) Check {
	return func() *FieldError {
		if n < min || n > max {
			return &FieldError{Field: field, Message: fmt.Sprintf("must contain between %d and %d entries", min, max)}
		}
		return nil
	}
}

// ParseAmount reads a non-negative token amount written in plain decimal
// notation. Exponents and more than MaxAmountDecimals fractional digits are
// rejected.
func ParseAmount(field, value string) (decimal.Decimal, *FieldError) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, &FieldError{Field: field, Message: "is required"}
	}
	if strings.ContainsAny(value, "eE+") || strings.HasPrefix(value, ".") || strings.HasSuffix(value, ".") {
		return decimal.Zero, &FieldError{Field: field, Message: "must be a plain decimal number"}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &FieldError{Field: field, Message: "must be a plain decimal number"}
	}
	if d.IsNegative() {
		return decimal.Zero, &FieldError{Field: field, Message: "must not be negative"}
	}
	if -d.Exponent() > MaxAmountDecimals {
		return decimal.Zero, &FieldError{Field: field, Message: fmt.Sprintf("has more than %d decimal places", MaxAmountDecimals)}
	}
	return d, nil
}

// Amount is the Check form of ParseAmount.
func Amount(field, value string) Check {
	return func() *FieldError {
		_, fe := ParseAmount(field, value)
		return fe
	}
}

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// AddressParamMiddleware rejects malformed :address path parameters before
// any handler runs.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr := c.Param("address"); addr != "" && !IsAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be 0x followed by 40 hex characters",
			})
			return
		}
		c.Next()
	}
}
