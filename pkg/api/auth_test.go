package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "no header", header: "", expected: ""},
		{name: "well-formed bearer", header: "Bearer abc123", expected: "abc123"},
		{name: "wrong scheme", header: "Basic abc123", expected: ""},
		{name: "extra whitespace trimmed", header: "Bearer   abc123  ", expected: "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			assert.Equal(t, tt.expected, extractBearerToken(c))
		})
	}
}

func TestExtractOwnerID(t *testing.T) {
	e := echo.New()

	t.Run("defaults to api-client", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		assert.Equal(t, "api-client", extractOwnerID(c))
	})

	t.Run("uses X-Owner-Id header when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Owner-Id", "alice")
		c := e.NewContext(req, httptest.NewRecorder())
		assert.Equal(t, "alice", extractOwnerID(c))
	})
}

func TestRequireBearerToken(t *testing.T) {
	s, _ := newTestServer(&fakeUpstreamClient{})

	t.Run("rejects missing token", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		called := false
		h := s.requireBearerToken(func(c *echo.Context) error {
			called = true
			return nil
		})
		require.NoError(t, h(c))
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("passes through with a token", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		called := false
		h := s.requireBearerToken(func(c *echo.Context) error {
			called = true
			return nil
		})
		require.NoError(t, h(c))
		assert.True(t, called)
	})
}
