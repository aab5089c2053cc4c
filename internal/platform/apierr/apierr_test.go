package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Unauthenticated("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Invalid("x"), http.StatusBadRequest},
		{InvalidCode("x"), http.StatusBadRequest},
		{InvalidState("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Internal("x"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", Conflict("dup")), http.StatusConflict},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestWriteHidesUnknownErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) { Write(c, errors.New("dial tcp 10.0.0.1:3306: refused")) })
	r.GET("/dup", func(c *gin.Context) { Write(c, Conflict("already checked in")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL", body["error"])
	assert.NotContains(t, body["message"], "10.0.0.1")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dup", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body["error"])
	assert.Equal(t, "already checked in", body["message"])
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("ctx: %w", InvalidState("closed"))
	assert.True(t, Is(err, CodeInvalidState))
	assert.False(t, Is(err, CodeConflict))
	assert.False(t, Is(errors.New("x"), CodeInternal))
}
