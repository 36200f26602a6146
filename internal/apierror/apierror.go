// Package apierror maps domain errors onto the JSON error bodies the API
// returns: {"error": code, "message": text}.
package apierror

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/logging"
)

// Coded errors choose their own HTTP status and error code.
type Coded interface {
	error
	HTTPStatus() (int, string)
}

// Status maps an error to an HTTP status and error code. Errors matching any
// of notFound render as 404.
func Status(err error, notFound ...error) (int, string) {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.HTTPStatus()
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound, "not_found"
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// Respond writes the error body. Server errors are logged.
func Respond(c *gin.Context, err error, notFound ...error) {
	status, code := Status(err, notFound...)
	if status >= http.StatusInternalServerError {
		logging.L(c.Request.Context()).Error("request failed",
			"path", c.FullPath(), "address", c.Param("address"), "error", err)
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
