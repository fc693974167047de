package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/covecrm/covecrm/pkg/errors"
)

func performJSON(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	handler(c)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestSuccessEnvelope(t *testing.T) {
	rec, body := performJSON(t, func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"hello": "world"})
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, body.Success)
	require.Nil(t, body.Error)
}

func TestErrorEnvelopeUsesAppErrorStatus(t *testing.T) {
	rec, body := performJSON(t, func(c *gin.Context) {
		Error(c, appErrors.ErrRateLimited)
	})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.False(t, body.Success)
	require.Equal(t, appErrors.ErrRateLimited.Code, body.Error.Code)
}

func TestPageMeta(t *testing.T) {
	meta := PageMeta(2, 7, 15)
	require.Equal(t, 2, meta.Page)
	require.Equal(t, 7, meta.PerPage)
	require.Equal(t, int64(15), meta.Total)
	require.Equal(t, 3, meta.TotalPages)
}
