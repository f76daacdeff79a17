// Package remote is the HTTP client of the GophJournal backend: account
// endpoints, the wrapped-bundle store, journal rows and server limits.
//
// Transport failures and 5xx answers are reported as
// common.ErrRemoteUnavailable, 401/403 as common.ErrUnauthenticated, 404 as
// common.ErrorNotFound and 409 as common.ErrVersionConflict.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/client/models"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/go-resty/resty/v2"
)

const (
	RegisterPath = "/api/auth/register"
	SaltPath     = "/api/auth/salt"
	LoginPath    = "/api/auth/login"
	BundlePath   = "/api/vault/bundle"
	JournalPath  = "/api/journal"
	ConfigPath   = "/api/config"
)

// EntryPath is the resource URL of one journal day.
func EntryPath(date string) string {
	return JournalPath + "/" + url.PathEscape(date)
}

// Credentials supplies the signed-in user and bearer token. A signed-in user
// with an empty token is an offline session.
type Credentials interface {
	Current() (string, bool)
	Token() string
}

type Client interface {
	Register(ctx context.Context, username string, salt, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (userID, token string, err error)

	GetBundle(ctx context.Context) (*cryptox.WrappedBundle, error)
	PutBundle(ctx context.Context, b *cryptox.WrappedBundle) error

	ListEntries(ctx context.Context) ([]models.RemoteEntry, error)
	GetEntry(ctx context.Context, date string) (*models.RemoteEntry, error)
	PutEntry(ctx context.Context, e models.RemoteEntry) error
	DeleteEntry(ctx context.Context, date string) error

	GetLimits(ctx context.Context) (models.Limits, error)

	Send(ctx context.Context, method, path string, body []byte) (int, error)
}

type HTTPClient struct {
	http  *resty.Client
	creds Credentials
}

var _ Client = (*HTTPClient)(nil)

func New(baseURL string, creds Credentials, timeout time.Duration) *HTTPClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &HTTPClient{http: c, creds: creds}
}

// BundleEnvelope is the body of GET and PUT /api/vault/bundle.
type BundleEnvelope struct {
	Bundle *cryptox.WrappedBundle `json:"bundle"`
}

type registerRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt_b64"`
	Verifier []byte `json:"verifier_b64"`
}

type saltResponse struct {
	Salt []byte `json:"salt_b64"`
}

type loginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier_b64"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

type listResponse struct {
	Entries []models.RemoteEntry `json:"entries"`
}

func (c *HTTPClient) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// authed returns a request carrying the bearer token.
func (c *HTTPClient) authed(ctx context.Context) (*resty.Request, error) {
	if _, ok := c.creds.Current(); !ok {
		return nil, common.ErrUnauthenticated
	}
	token := c.creds.Token()
	if token == "" {
		return nil, fmt.Errorf("%w: offline session", common.ErrRemoteUnavailable)
	}
	return c.request(ctx).SetAuthToken(token), nil
}

func (c *HTTPClient) Register(ctx context.Context, username string, salt, verifier []byte) error {
	resp, err := c.request(ctx).
		SetBody(registerRequest{Username: username, Salt: salt, Verifier: verifier}).
		Post(RegisterPath)
	return mapResponse(ctx, "register", resp, err)
}

func (c *HTTPClient) GetSalt(ctx context.Context, username string) ([]byte, error) {
	var out saltResponse
	resp, err := c.request(ctx).
		SetQueryParam("username", username).
		SetResult(&out).
		Get(SaltPath)
	if err := mapResponse(ctx, "get salt", resp, err); err != nil {
		return nil, err
	}
	return out.Salt, nil
}

func (c *HTTPClient) Login(ctx context.Context, username string, verifier []byte) (string, string, error) {
	var out loginResponse
	resp, err := c.request(ctx).
		SetBody(loginRequest{Username: username, Verifier: verifier}).
		SetResult(&out).
		Post(LoginPath)
	if err := mapResponse(ctx, "login", resp, err); err != nil {
		return "", "", err
	}
	if out.UserID == "" || out.AccessToken == "" {
		return "", "", fmt.Errorf("login: incomplete response")
	}
	return out.UserID, out.AccessToken, nil
}

// GetBundle returns the stored wrapped bundle, or nil when the user has none.
// A stored record that fails validation is reported as ErrInvalidBundle.
func (c *HTTPClient) GetBundle(ctx context.Context) (*cryptox.WrappedBundle, error) {
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}
	var out BundleEnvelope
	resp, err := req.SetResult(&out).Get(BundlePath)
	if err := mapResponse(ctx, "get bundle", resp, err); err != nil {
		return nil, err
	}
	if out.Bundle == nil {
		return nil, nil
	}
	if err := out.Bundle.Validate(); err != nil {
		return nil, err
	}
	return out.Bundle, nil
}

// PutBundle upserts the bundle; nil deletes it.
func (c *HTTPClient) PutBundle(ctx context.Context, b *cryptox.WrappedBundle) error {
	req, err := c.authed(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(BundleEnvelope{Bundle: b}).Put(BundlePath)
	return mapResponse(ctx, "put bundle", resp, err)
}

func (c *HTTPClient) ListEntries(ctx context.Context) ([]models.RemoteEntry, error) {
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}
	var out listResponse
	resp, err := req.SetResult(&out).Get(JournalPath)
	if err := mapResponse(ctx, "list entries", resp, err); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *HTTPClient) GetEntry(ctx context.Context, date string) (*models.RemoteEntry, error) {
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}
	var out models.RemoteEntry
	resp, err := req.SetResult(&out).Get(EntryPath(date))
	if err := mapResponse(ctx, "get entry", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) PutEntry(ctx context.Context, e models.RemoteEntry) error {
	req, err := c.authed(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(e).Put(EntryPath(e.Date))
	return mapResponse(ctx, "put entry", resp, err)
}

func (c *HTTPClient) DeleteEntry(ctx context.Context, date string) error {
	req, err := c.authed(ctx)
	if err != nil {
		return err
	}
	resp, err := req.Delete(EntryPath(date))
	return mapResponse(ctx, "delete entry", resp, err)
}

func (c *HTTPClient) GetLimits(ctx context.Context) (models.Limits, error) {
	var out models.Limits
	resp, err := c.request(ctx).SetResult(&out).Get(ConfigPath)
	if err := mapResponse(ctx, "get limits", resp, err); err != nil {
		return models.Limits{}, err
	}
	return out, nil
}

// Send replays a queued write. The error is non-nil only when no HTTP
// answer was obtained.
func (c *HTTPClient) Send(ctx context.Context, method, path string, body []byte) (int, error) {
	req, err := c.authed(ctx)
	if err != nil {
		return 0, err
	}
	if len(body) > 0 {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return 0, transportError(ctx, method+" "+path, err)
	}
	return resp.StatusCode(), nil
}

func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", common.ErrRemoteUnavailable, op, err)
}

func mapResponse(ctx context.Context, op string, resp *resty.Response, err error) error {
	if err != nil {
		return transportError(ctx, op, err)
	}
	return mapStatus(op, resp.StatusCode())
}

func mapStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, common.ErrUnauthenticated)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, common.ErrorNotFound)
	case status == http.StatusConflict:
		return fmt.Errorf("%s: %w", op, common.ErrVersionConflict)
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%s: %w", op, common.ErrInvalidInput)
	case status >= 500:
		return fmt.Errorf("%s: status %d: %w", op, status, common.ErrRemoteUnavailable)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}

// IsUnavailable reports whether err means the server could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, common.ErrRemoteUnavailable)
}
