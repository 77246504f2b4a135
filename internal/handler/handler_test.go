package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/database"
	"github.com/dukerupert/ondo/internal/store"
	"github.com/dukerupert/ondo/internal/tracker"
	"github.com/dukerupert/ondo/internal/websocket"
)

type testEnv struct {
	db         *sql.DB
	members    *store.MemberStore
	attendance *store.AttendanceStore
	fees       *store.FeeStore
	viewers    *tracker.Registry
	hub        *websocket.Hub
	logger     *slog.Logger
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		db:         db,
		members:    store.NewMemberStore(db),
		attendance: store.NewAttendanceStore(db),
		fees:       store.NewFeeStore(db),
		hub:        websocket.NewHub(logger),
		logger:     logger,
	}
	seq := tracker.NewSequencer(time.Now())
	env.viewers = tracker.NewRegistry(
		tracker.NewViewerFactory(env.members, env.attendance, env.fees, seq, tracker.DefaultFeeEpoch, logger),
		time.Hour,
		0,
	)
	return env
}

const testViewer = "6f1c2b8e-3a0d-4c55-9b1e-2f7d1a9c0e11"

// do runs h behind the viewer middleware with the given capability.
func do(t *testing.T, h http.HandlerFunc, method, target string, body any, c auth.Capability) *httptest.ResponseRecorder {
	t.Helper()
	if c == auth.Guest {
		return serve(t, h, method, target, body, nil)
	}
	return serve(t, h, method, target, body, &auth.AuthContext{UserID: 1, Capability: c})
}

// doAs runs h with a specific AuthContext and no body.
func doAs(t *testing.T, h http.HandlerFunc, method, target string, ac auth.AuthContext) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, h, method, target, nil, &ac)
}

func serve(t *testing.T, h http.HandlerFunc, method, target string, body any, ac *auth.AuthContext) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.AddCookie(&http.Cookie{Name: ViewerCookieName, Value: testViewer})
	if ac != nil {
		req = req.WithContext(auth.WithAuth(req.Context(), *ac))
	}
	rec := httptest.NewRecorder()
	Viewers(false)(h).ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorEnvelope[T any] struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
	View   T                 `json:"view"`
}
