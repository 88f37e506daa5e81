package identity_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketpulse/pkg/identity"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	token, err := r.Issue(9)
	require.NoError(t, err)

	handler := identity.Middleware(r)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id, ok := identity.UserIDFromContext(req.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(strconv.FormatInt(id, 10)))
	}))

	tests := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "bearer header", target: "/", header: "Bearer " + token, status: http.StatusOK, body: "9"},
		{name: "lowercase scheme", target: "/", header: "bearer " + token, status: http.StatusOK, body: "9"},
		{name: "query token", target: "/?token=" + token, status: http.StatusOK, body: "9"},
		{name: "missing token", target: "/", status: http.StatusUnauthorized},
		{name: "basic scheme", target: "/", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "bad token", target: "/?token=nope", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "authentication required")
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := identity.UserIDFromContext(req.Context())
	assert.False(t, ok)

	id, ok := identity.UserIDFromContext(identity.WithUserID(req.Context(), 3))
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
}
