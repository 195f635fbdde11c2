package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	_, err := uuid.Parse(GenerateID())
	require.NoError(t, err)
	require.NotEqual(t, GenerateID(), GenerateID())
}

func TestGenerateConnectionID_Monotonic(t *testing.T) {
	prev := GenerateConnectionID()
	for i := 0; i < 100; i++ {
		next := GenerateConnectionID()
		_, err := ulid.Parse(next)
		require.NoError(t, err)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestSetLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	require.Equal(t, log.DebugLevel, log.GetLevel())
	require.Error(t, SetLevel("loud"))
	require.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestJSONResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	JSONResponse(c, http.StatusCreated, gin.H{"id": "a1"}, "created")

	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"status":201,"message":"created","data":{"id":"a1"}}`, w.Body.String())
}
