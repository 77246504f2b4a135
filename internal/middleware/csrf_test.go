package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRF(t *testing.T) {
	key := bytes.Repeat([]byte("k"), 32)
	handler := CSRF(key, false, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, CSRFToken(r))
	}))

	// Safe methods pass and hand out a token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/csrf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	token := rec.Body.String()
	if token == "" {
		t.Fatal("expected a token")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected csrf cookie")
	}

	// Unsafe methods without the token are rejected.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/attendance/toggle", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST without token status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	req := httptest.NewRequest("POST", "/api/attendance/toggle", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	req.Header.Set(CSRFHeader, token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("POST with token status = %d, want %d", rec.Code, http.StatusOK)
	}
}
