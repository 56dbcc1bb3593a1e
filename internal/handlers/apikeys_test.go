package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

func setupAPIKeyTest(t *testing.T) (*APIKeyHandler, sqlmock.Sqlmock) {
	gin.SetMode(gin.TestMode)
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewAPIKeyHandler(db.NewApiKeyDB(sqlDB)), mock
}

func testContextWithPrincipal(w *httptest.ResponseRecorder, principal *models.Principal) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Set(auth.PrincipalContextKey, principal)
	return c
}

func TestAPIKeyCreate_ReturnsPlaintextOnce(t *testing.T) {
	h, mock := setupAPIKeyTest(t)

	mock.ExpectExec("INSERT INTO api_keys").WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	c := testContextWithPrincipal(w, &models.Principal{UserID: "user1", Tier: models.TierFree, Active: true})
	body, _ := json.Marshal(map[string]string{"displayName": "ci key"})
	c.Request = httptest.NewRequest("POST", "/api/keys", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	require.Equal(t, 201, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["key"])
	assert.Equal(t, "ci key", resp["displayName"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyCreate_RejectsMissingDisplayName(t *testing.T) {
	h, _ := setupAPIKeyTest(t)

	w := httptest.NewRecorder()
	c := testContextWithPrincipal(w, &models.Principal{UserID: "user1", Tier: models.TierFree, Active: true})
	c.Request = httptest.NewRequest("POST", "/api/keys", bytes.NewReader([]byte(`{}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	assert.Equal(t, 400, w.Code)
}

func TestAPIKeyDelete_RevokesAndReturns204(t *testing.T) {
	h, mock := setupAPIKeyTest(t)

	mock.ExpectExec("UPDATE api_keys SET active").WithArgs("key1").WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "key1"}}
	c.Request = httptest.NewRequest("DELETE", "/api/keys/key1", nil)

	h.Delete(c)

	assert.Equal(t, 204, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
