package server

import (
	"net/http"

	"matchstats/internal/apperr"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConfigInUse, apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// abortWithError writes err as JSON. Internal failures are not echoed.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	body := gin.H{"error": err.Error()}
	if kind := apperr.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}
