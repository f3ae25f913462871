package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/regdesk/internal/auth"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func testUser(tier domain.Tier) *domain.User {
	return &domain.User{
		ID:    uuid.MustParse("6f1c1e0c-3c55-4d0e-9a51-2d6f4a1b7c01"),
		Email: "analyst@example.com",
		Tier:  tier,
	}
}

// newRequest builds a request, JSON-encoding body when it is not nil, and
// attaches user to the context when set.
func newRequest(t *testing.T, method, target string, body interface{}, user *domain.User) *http.Request {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	if user != nil {
		req = req.WithContext(auth.SetUser(req.Context(), user))
	}
	return req
}

// serve routes req through mux so path values are populated.
func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func passthrough(next http.Handler) http.Handler { return next }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body JSONError
	decodeBody(t, rec, &body)
	return body.Error.Code
}
