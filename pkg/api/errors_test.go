package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/dembrane/agentic/pkg/runstore"
)

func TestMapStoreError(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "not found", err: runstore.ErrNotFound, wantCode: http.StatusNotFound},
		{name: "illegal transition", err: runstore.ErrIllegalTransition, wantCode: http.StatusConflict},
		{name: "conflict", err: runstore.ErrConflict, wantCode: http.StatusConflict},
		{name: "unknown", err: errors.New("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			assert.NoError(t, mapStoreError(c, tt.err))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestBadRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.NoError(t, badRequest(c, "nope"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "nope")
}
