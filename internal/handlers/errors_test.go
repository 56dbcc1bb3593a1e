package handlers

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/DTMBX/evident/internal/apperrors"
)

func TestWriteError_AppErrorSetsStatusAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, apperrors.New(apperrors.NotFound, "evidence not found"))

	assert.Equal(t, 404, w.Code)
	assert.Contains(t, w.Body.String(), "evidence not found")
}

func TestWriteError_RateLimitedSetsRetryAfterHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, apperrors.New(apperrors.RateLimited, "slow down").WithRetryAfter(5))

	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestWriteError_PlainErrorFallsBackToInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, errors.New("boom"))

	assert.Equal(t, 500, w.Code)
}
