package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodyLimitMiddleware(t *testing.T) {
	t.Run("passes requests under the limit", func(t *testing.T) {
		m := NewBodyLimitMiddleware(100)

		var read []byte
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			read, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("small body"))
		rec := httptest.NewRecorder()
		m.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "small body", string(read))
	})

	t.Run("rejects declared content length over the limit", func(t *testing.T) {
		m := NewBodyLimitMiddleware(10)

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be reached")
		})

		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(strings.Repeat("x", 50)))
		rec := httptest.NewRecorder()
		m.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("caps reads when length is not declared", func(t *testing.T) {
		m := NewBodyLimitMiddleware(10)

		var readErr error
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("x", 50))))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		m.Handler(next).ServeHTTP(rec, req)

		assert.Error(t, readErr)
	})

	t.Run("zero max size falls back to the default", func(t *testing.T) {
		m := NewBodyLimitMiddleware(0)
		assert.Equal(t, int64(DefaultMaxBodySize), m.maxSize)
	})
}
