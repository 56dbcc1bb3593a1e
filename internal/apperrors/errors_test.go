package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DerivesStatusCodeFromKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{MalformedRequest, http.StatusBadRequest},
		{Unauthenticated, http.StatusUnauthorized},
		{InsufficientTier, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{RateLimited, http.StatusTooManyRequests},
		{QuotaExceeded, http.StatusForbidden},
		{DeadlineExceeded, http.StatusGatewayTimeout},
		{DependencyUnavailable, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
		{Kind("totally-unknown"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := New(tc.kind, "message")
		assert.Equal(t, tc.want, err.StatusCode, "kind %s", tc.kind)
	}
}

func TestWrap_CapturesUnderlyingDetailsWithoutLeakingIntoMessage(t *testing.T) {
	underlying := errors.New("connection refused")
	err := Wrap(DatabaseError, "failed to load evidence", underlying)

	assert.Equal(t, "failed to load evidence", err.Message)
	assert.Equal(t, "connection refused", err.Details)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotContains(t, err.ToResponse().Message, "connection refused")
}

func TestWrap_NilErrorLeavesDetailsEmpty(t *testing.T) {
	err := Wrap(Internal, "unexpected", nil)
	assert.Empty(t, err.Details)
	assert.Equal(t, "Internal: unexpected", err.Error())
}

func TestToResponse_OmitsInternalOnlyFields(t *testing.T) {
	err := New(NotFound, "evidence not found").WithCorrelationID("corr-1")
	resp := err.ToResponse()

	assert.Equal(t, "NotFound", resp.Error)
	assert.Equal(t, "evidence not found", resp.Message)
	assert.Equal(t, "corr-1", resp.CorrelationID)
}

func TestWithRetryAfter_SetsSecondsOnRateLimitedError(t *testing.T) {
	err := New(RateLimited, "too many requests").WithRetryAfter(30)
	assert.Equal(t, 30, err.RetryAfterSeconds)
}

func TestAs_DistinguishesAppErrorFromPlainError(t *testing.T) {
	appErr := New(Conflict, "duplicate")
	ae, ok := As(appErr)
	assert.True(t, ok)
	assert.Same(t, appErr, ae)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestRetryable_OnlyDependencyUnavailableIsRetryable(t *testing.T) {
	assert.True(t, Retryable(DependencyUnavailable))
	assert.False(t, Retryable(IntegrityError))
	assert.False(t, Retryable(MalformedRequest))
}
