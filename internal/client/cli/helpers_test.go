package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophjournal/internal/client/models"
	"github.com/dmitrijs2005/gophjournal/internal/client/vault"
	"github.com/dmitrijs2005/gophjournal/internal/common"
)

// ------------ helpers ------------

func readerFromLines(lines ...string) *bufio.Reader {
	if len(lines) == 0 || lines[len(lines)-1] != "" {
		lines = append(lines, "")
	}
	return bufio.NewReader(strings.NewReader(strings.Join(lines, "\n")))
}

// captureOutput replaces printlnFn and returns what was printed.
func captureOutput(t *testing.T) func() string {
	t.Helper()
	var mu sync.Mutex
	var sb strings.Builder
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Fprintln(&sb, a...)
	}
	t.Cleanup(func() { printlnFn = orig })
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return sb.String()
	}
}

func stubSecrets(t *testing.T, secrets ...string) {
	t.Helper()
	orig := getSecret
	i := 0
	getSecret = func(_ io.Writer, _ string) ([]byte, error) {
		if i >= len(secrets) {
			return nil, io.EOF
		}
		s := secrets[i]
		i++
		return []byte(s), nil
	}
	t.Cleanup(func() { getSecret = orig })
}

type fakeSession struct {
	user  string
	token string
}

func (s *fakeSession) Current() (string, bool) { return s.user, s.user != "" }
func (s *fakeSession) Token() string           { return s.token }

type fakeVault struct {
	state      vault.State
	passphrase string

	loadErr   error
	loadCalls int

	created    string
	remembered bool
	locked     bool
	reset      bool
	rememberOK bool
	forgotten  bool
}

func (f *fakeVault) State() vault.State { return f.state }
func (f *fakeVault) Load(ctx context.Context) error {
	f.loadCalls++
	return f.loadErr
}
func (f *fakeVault) Create(ctx context.Context, p []byte, remember bool) error {
	if f.state != vault.NoBundle {
		return common.ErrBundleExists
	}
	f.created, f.remembered, f.state = string(p), remember, vault.Unlocked
	return nil
}
func (f *fakeVault) Unlock(ctx context.Context, p []byte) error {
	if string(p) != f.passphrase {
		return common.ErrWrongPassphrase
	}
	f.state = vault.Unlocked
	return nil
}
func (f *fakeVault) Lock() { f.locked = true; f.state = vault.Locked }
func (f *fakeVault) Reset(ctx context.Context) error {
	f.reset = true
	f.state = vault.NoBundle
	return nil
}
func (f *fakeVault) RememberDevice(ctx context.Context) error {
	if f.state != vault.Unlocked {
		return common.ErrVaultLocked
	}
	f.rememberOK = true
	return nil
}
func (f *fakeVault) ForgetDevice(ctx context.Context) error { f.forgotten = true; return nil }

type fakeJournal struct {
	saved   map[string]string
	pending int
	synced  int
	deleted []string
	readErr error
	list    []models.ViewOverview
	sums    []models.SummaryView
	sumArgs []string
}

func newFakeJournal() *fakeJournal { return &fakeJournal{saved: map[string]string{}} }

func (f *fakeJournal) Save(ctx context.Context, date, content string) (models.LocalEntry, error) {
	f.saved[date] = content
	return models.LocalEntry{Date: date}, nil
}
func (f *fakeJournal) Read(ctx context.Context, date string) (models.Entry, error) {
	if f.readErr != nil {
		return models.Entry{}, f.readErr
	}
	c, ok := f.saved[date]
	if !ok {
		return models.Entry{}, common.ErrorNotFound
	}
	return models.Entry{Date: date, Content: c}, nil
}
func (f *fakeJournal) List(ctx context.Context) ([]models.ViewOverview, error) { return f.list, nil }
func (f *fakeJournal) Delete(ctx context.Context, date string) error {
	f.deleted = append(f.deleted, date)
	return nil
}
func (f *fakeJournal) Sync(ctx context.Context) int {
	n := f.pending
	f.synced += n
	f.pending = 0
	return n
}
func (f *fakeJournal) Pending(ctx context.Context) int { return f.pending }
func (f *fakeJournal) SaveSummary(ctx context.Context, from, to, text string) (models.SummaryView, error) {
	f.sumArgs = []string{from, to, text}
	return models.SummaryView{From: from, To: to, Text: text}, nil
}
func (f *fakeJournal) Summaries(ctx context.Context) ([]models.SummaryView, error) {
	return f.sums, nil
}

func newTestApp(r *bufio.Reader, sess *fakeSession, v *fakeVault, j *fakeJournal) *App {
	return &App{reader: r, session: sess, vault: v, journal: j}
}
