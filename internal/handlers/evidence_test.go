package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_RejectsUnsupportedType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEvidenceHandler(nil, nil, nil, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("type", "fax"))
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/evidence/upload", &body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())

	h.Upload(c)

	assert.Equal(t, 400, w.Code)
}

func TestUpload_RejectsMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEvidenceHandler(nil, nil, nil, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("type", "document"))
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/evidence/upload", &body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())

	h.Upload(c)

	assert.Equal(t, 400, w.Code)
}
