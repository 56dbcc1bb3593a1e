package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DTMBX/evident/internal/apperrors"
)

// writeError renders err as the standard {error, message} body (spec.md
// §7), setting Retry-After when the underlying AppError carries one and
// falling back to a generic Internal response for anything that didn't
// cross the boundary as an AppError.
func writeError(c *gin.Context, err error) {
	var ae *apperrors.AppError
	if !errors.As(err, &ae) {
		ae = apperrors.Wrap(apperrors.Internal, "internal error", err)
	}
	if ae.RetryAfterSeconds > 0 {
		c.Header("Retry-After", strconv.Itoa(ae.RetryAfterSeconds))
	}
	c.JSON(ae.StatusCode, ae.ToResponse())
}
