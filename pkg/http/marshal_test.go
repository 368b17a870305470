package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarshalJSONWithStatus(t *testing.T) {
	t.Run("body", func(t *testing.T) {
		w := httptest.NewRecorder()
		MarshalJSONWithStatus(w, map[string]string{"error": "slow_down"}, http.StatusBadRequest)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("content-type"))
		assert.JSONEq(t, `{"error":"slow_down"}`, w.Body.String())
	})
	t.Run("nil body", func(t *testing.T) {
		w := httptest.NewRecorder()
		MarshalJSONWithStatus(w, nil, http.StatusOK)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})
}
