package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/ratebucket"
)

func TestRateLimitStatus_ReportsBucketsAndUsage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	mock.ExpectQuery("SELECT (.+) FROM usage_counters").WithArgs("user1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	cfg := &config.Config{TierLimits: map[string]config.TierLimit{
		"free": {RateBucketCapacity: 2, APICallsPerMinute: 1},
	}}
	h := NewRateLimitHandler(ratebucket.New(), db.NewUsageDB(sqlDB), cfg)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(auth.PrincipalContextKey, &models.Principal{UserID: "user1", Tier: models.TierFree, Active: true})
	c.Request = httptest.NewRequest("GET", "/api/rate-limit/status", nil)

	h.Status(c)

	assert.Equal(t, 200, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "free", resp["tier"])
	buckets, ok := resp["buckets"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, buckets, "upload")
	assert.Contains(t, buckets, "process")
	assert.Contains(t, buckets, "export")
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit-upload"))
}
