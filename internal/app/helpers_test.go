package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"folio/api/internal/config"
	"folio/api/internal/dispatch"
	"folio/api/internal/email"
	"folio/api/internal/lifecycle"
	"folio/api/internal/metrics"
	"folio/api/internal/revisions"
	"folio/api/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type sentEmail struct {
	To         string
	TemplateID string
	Link       string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (r *recordingSender) Send(to, _ string, templateID string, data email.TemplateData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentEmail{To: to, TemplateID: templateID, Link: data.Link})
	return nil
}

func (r *recordingSender) emails() []sentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEmail(nil), r.sent...)
}

type testEnv struct {
	service *Service
	handler http.Handler
	store   *store.SQLStore
	sender  *recordingSender
	metrics *metrics.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.Open(ctx, store.SQLite, "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(ctx, db, store.SQLite, ""); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewSQLStore(db, store.SQLite)

	cfg := config.Config{
		JWTSecret:      "test-secret",
		AccessTTLSecs:  3600,
		RefreshTTLSecs: 86400,
		PublicBaseURL:  "https://folio.test",
	}
	logger := zap.NewNop()
	recorder := metrics.New()
	sender := &recordingSender{}
	svc := New(cfg, Deps{
		Store:      st,
		Engine:     lifecycle.MustDefault(lifecycle.WithClock(func() time.Time { return testNow })),
		Dispatcher: dispatch.New(sender, cfg.PublicBaseURL, logger, recorder),
		Revisions:  revisions.New(t.TempDir()),
		Metrics:    recorder,
		Logger:     logger,
		BcryptCost: bcrypt.MinCost,
	})
	return &testEnv{
		service: svc,
		handler: NewHTTPServer(svc, "*").Handler(),
		store:   st,
		sender:  sender,
		metrics: recorder,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// signUp registers a user with their own organization and returns the
// session payload.
func (e *testEnv) signUp(t *testing.T, emailAddr string) map[string]any {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       emailAddr,
		"password":    "password123",
		"displayName": strings.Split(emailAddr, "@")[0],
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d body=%s", emailAddr, rr.Code, rr.Body.String())
	}
	return decodeMap(t, rr)
}

func (e *testEnv) createCustomer(t *testing.T, token, name, emailAddr string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/customers", token, map[string]string{"name": name, "email": emailAddr})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create customer: status %d body=%s", rr.Code, rr.Body.String())
	}
	return decodeMap(t, rr)["id"].(string)
}

func (e *testEnv) createDocument(t *testing.T, token, collection string, body map[string]any) map[string]any {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/"+collection, token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d body=%s", collection, rr.Code, rr.Body.String())
	}
	return decodeMap(t, rr)
}

func (e *testEnv) action(t *testing.T, token, collection, id, action string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/"+collection+"/"+id+"/actions/"+action, token, body)
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func stringsOf(value any) []string {
	items, _ := value.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
