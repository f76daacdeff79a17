package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/server/auth"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
	"github.com/dmitrijs2005/gophjournal/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeAccounts struct {
	users map[string][]byte // username -> verifier
	err   error
}

func (f *fakeAccounts) Register(_ context.Context, username string, salt, verifier []byte) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.users[username]; ok {
		return nil, common.ErrAlreadyExists
	}
	f.users[username] = verifier
	return &models.User{ID: "id-" + username, UserName: username}, nil
}

func (f *fakeAccounts) GetSalt(_ context.Context, username string) ([]byte, error) {
	return []byte("salt-" + username), nil
}

func (f *fakeAccounts) Login(_ context.Context, username string, verifier []byte) (string, string, error) {
	if v, ok := f.users[username]; !ok || !bytes.Equal(v, verifier) {
		return "", "", common.ErrorUnauthorized
	}
	tok, err := auth.GenerateToken("id-"+username, []byte(secret), time.Hour)
	return "id-" + username, tok, err
}

type fakeBundles struct {
	mu    sync.Mutex
	items map[string]*cryptox.WrappedBundle
	err   error
}

func (f *fakeBundles) Get(_ context.Context, userID string) (*cryptox.WrappedBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.items[userID], nil
}

func (f *fakeBundles) Put(_ context.Context, userID string, b *cryptox.WrappedBundle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b == nil {
		delete(f.items, userID)
		return nil
	}
	f.items[userID] = b
	return nil
}

type fakeJournal struct {
	mu   sync.Mutex
	rows map[string]models.JournalRow
	err  error
}

func (f *fakeJournal) List(_ context.Context, userID string) ([]models.JournalRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.JournalRow
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeJournal) Get(_ context.Context, userID, date string) (*models.JournalRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[userID+date]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &r, nil
}

func (f *fakeJournal) Put(_ context.Context, row *models.JournalRow) (*models.JournalRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := services.ValidateDate(row.Date); err != nil {
		return nil, err
	}
	if cur, ok := f.rows[row.UserID+row.Date]; ok && cur.UpdatedAt.After(row.UpdatedAt) {
		return &cur, common.ErrVersionConflict
	}
	f.rows[row.UserID+row.Date] = *row
	return row, nil
}

func (f *fakeJournal) Delete(_ context.Context, userID, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, userID+date)
	return nil
}

func (f *fakeJournal) Limits() models.Limits {
	return models.Limits{MaxEntryBytes: 100, MaxSummaryHistory: 20}
}

type harness struct {
	srv      *httptest.Server
	accounts *fakeAccounts
	bundles  *fakeBundles
	journal  *fakeJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		accounts: &fakeAccounts{users: map[string][]byte{}},
		bundles:  &fakeBundles{items: map[string]*cryptox.WrappedBundle{}},
		journal:  &fakeJournal{rows: map[string]models.JournalRow{}},
	}
	h.srv = httptest.NewServer(NewServer(h.accounts, h.bundles, h.journal, secret, nil))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, token, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(secret), time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"alice","salt_b64":"c2FsdA==","verifier_b64":"dmVy"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.JSONEq(t, `{"user_id":"id-alice"}`, string(body))

	status, _ = h.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"alice","salt_b64":"c2FsdA==","verifier_b64":"dmVy"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, body = h.do(t, http.MethodGet, "/api/auth/salt?username=alice", "", "")
	require.Equal(t, http.StatusOK, status)
	var salt struct {
		Salt []byte `json:"salt_b64"`
	}
	require.NoError(t, json.Unmarshal(body, &salt))
	assert.Equal(t, []byte("salt-alice"), salt.Salt)

	status, body = h.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","verifier_b64":"dmVy"}`)
	require.Equal(t, http.StatusOK, status)
	var login loginResponse
	require.NoError(t, json.Unmarshal(body, &login))
	assert.Equal(t, "id-alice", login.UserID)
	uid, err := auth.GetUserIDFromToken(login.AccessToken, []byte(secret))
	require.NoError(t, err)
	assert.Equal(t, "id-alice", uid)

	status, _ = h.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","verifier_b64":"eHh4"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestStrictDecoding(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `{"username":"a","salt_b64":"c2FsdA==","verifier_b64":"dmVy","admin":true}`},
		{name: "missing field", body: `{"username":"a","salt_b64":"c2FsdA=="}`},
		{name: "not json", body: `hello`},
		{name: "trailing data", body: `{"username":"a","salt_b64":"c2FsdA==","verifier_b64":"dmVy"} {}`},
		{name: "bad base64", body: `{"username":"a","salt_b64":"%%","verifier_b64":"dmVy"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := h.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}

	status, _ := h.do(t, http.MethodGet, "/api/auth/salt", "", "")
	assert.Equal(t, http.StatusBadRequest, status, "username is required")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/api/vault/bundle"},
		{http.MethodPut, "/api/vault/bundle"},
		{http.MethodGet, "/api/journal"},
		{http.MethodGet, "/api/journal/2026-01-01"},
		{http.MethodPut, "/api/journal/2026-01-01"},
		{http.MethodDelete, "/api/journal/2026-01-01"},
	} {
		status, _ := h.do(t, rt.method, rt.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, status, rt.method+" "+rt.path)

		status, _ = h.do(t, rt.method, rt.path, "garbage", "")
		assert.Equal(t, http.StatusUnauthorized, status, rt.method+" "+rt.path)
	}
}

func TestBundleRoutes(t *testing.T) {
	h := newHarness(t)
	tok := token(t, "u-1")

	status, body := h.do(t, http.MethodGet, "/api/vault/bundle", tok, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"bundle":null}`, string(body))

	b, err := cryptox.Wrap(cryptox.NewDataKey(), cryptox.NewDataKey(), cryptox.NewSalt(), cryptox.CurrentBundleVersion)
	require.NoError(t, err)
	payload, err := json.Marshal(bundleEnvelope{Bundle: b})
	require.NoError(t, err)

	status, _ = h.do(t, http.MethodPut, "/api/vault/bundle", tok, string(payload))
	require.Equal(t, http.StatusNoContent, status)

	status, body = h.do(t, http.MethodGet, "/api/vault/bundle", tok, "")
	require.Equal(t, http.StatusOK, status)
	var got bundleEnvelope
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, b, got.Bundle)

	status, _ = h.do(t, http.MethodPut, "/api/vault/bundle", tok,
		`{"bundle":{"wrapped_b64":"","iv_b64":"aXY=","salt_b64":"c2FsdA==","version":1}}`)
	assert.Equal(t, http.StatusBadRequest, status, "malformed bundle")

	status, _ = h.do(t, http.MethodPut, "/api/vault/bundle", tok,
		`{"bundle":{"wrapped_b64":"d3I=","iv_b64":"aXY=","salt_b64":"c2FsdA==","version":1,"extra":1}}`)
	assert.Equal(t, http.StatusBadRequest, status, "unknown nested field")

	status, _ = h.do(t, http.MethodPut, "/api/vault/bundle", tok, `{"bundle":null}`)
	require.Equal(t, http.StatusNoContent, status)
	status, body = h.do(t, http.MethodGet, "/api/vault/bundle", tok, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"bundle":null}`, string(body))

	status, body = h.do(t, http.MethodGet, "/api/vault/bundle", token(t, "u-2"), "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"bundle":null}`, string(body), "bundles are per user")
}

func TestBundleCorruptedInStorage(t *testing.T) {
	h := newHarness(t)
	h.bundles.err = fmt.Errorf("%w: bundle bundles/u-1.json: bad json", common.ErrCorruptedRecord)

	status, body := h.do(t, http.MethodGet, "/api/vault/bundle", token(t, "u-1"), "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, string(body), "bad json")
}

func TestJournalRoutes(t *testing.T) {
	h := newHarness(t)
	tok := token(t, "u-1")

	status, body := h.do(t, http.MethodGet, "/api/journal", tok, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"entries":[]}`, string(body))

	newer := `{"date":"2026-01-01","cipher_b64":"Yw==","iv_b64":"aQ==","version":1,"updated_at":"2026-01-01T12:00:00Z"}`
	status, _ = h.do(t, http.MethodPut, "/api/journal/2026-01-01", tok, newer)
	require.Equal(t, http.StatusOK, status)

	older := `{"date":"2026-01-01","cipher_b64":"b2xk","iv_b64":"aQ==","version":1,"updated_at":"2026-01-01T08:00:00Z"}`
	status, body = h.do(t, http.MethodPut, "/api/journal/2026-01-01", tok, older)
	require.Equal(t, http.StatusConflict, status)
	var current models.JournalRow
	require.NoError(t, json.Unmarshal(body, &current))
	assert.Equal(t, "Yw==", current.CipherB64, "conflict answers with the stored copy")

	status, _ = h.do(t, http.MethodPut, "/api/journal/2026-01-02", tok, newer)
	assert.Equal(t, http.StatusBadRequest, status, "path and body dates differ")

	status, _ = h.do(t, http.MethodPut, "/api/journal/not-a-date", tok,
		`{"cipher_b64":"Yw==","iv_b64":"aQ==","version":1,"updated_at":"2026-01-01T12:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(t, http.MethodGet, "/api/journal/2026-01-01", tok, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"cipher_b64":"Yw=="`)
	assert.NotContains(t, string(body), "u-1", "user id is not exposed")

	status, body = h.do(t, http.MethodGet, "/api/journal", tok, "")
	require.Equal(t, http.StatusOK, status)
	var list listResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list.Entries, 1)

	status, _ = h.do(t, http.MethodDelete, "/api/journal/2026-01-01", tok, "")
	require.Equal(t, http.StatusNoContent, status)

	status, _ = h.do(t, http.MethodGet, "/api/journal/2026-01-01", tok, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestJournalInternalError(t *testing.T) {
	h := newHarness(t)
	h.journal.err = errors.New("db down")

	status, body := h.do(t, http.MethodGet, "/api/journal", token(t, "u-1"), "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, string(body), "db down")
}

func TestConfigAndRouting(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodGet, "/api/config", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"max_entry_bytes":100,"max_summary_history":20}`, string(body))

	status, _ = h.do(t, http.MethodGet, "/api/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(t, http.MethodPost, "/api/config", "", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrEntryTooLarge, http.StatusRequestEntityTooLarge},
		{common.ErrInvalidInput, http.StatusBadRequest},
		{common.ErrInvalidBundle, http.StatusBadRequest},
		{common.ErrorUnauthorized, http.StatusUnauthorized},
		{common.ErrInvalidToken, http.StatusUnauthorized},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrAlreadyExists, http.StatusConflict},
		{common.ErrVersionConflict, http.StatusConflict},
		{common.ErrCorruptedRecord, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewServer(&fakeAccounts{}, &fakeBundles{}, &fakeJournal{}, secret, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
