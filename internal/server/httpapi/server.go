// Package httpapi is the REST surface of the GophJournal backend. Every
// payload it stores or returns is ciphertext produced by the client.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/dmitrijs2005/gophjournal/internal/server/auth"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
	"github.com/gorilla/mux"
)

type Accounts interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (userID, token string, err error)
}

type Bundles interface {
	Get(ctx context.Context, userID string) (*cryptox.WrappedBundle, error)
	Put(ctx context.Context, userID string, b *cryptox.WrappedBundle) error
}

type Journal interface {
	List(ctx context.Context, userID string) ([]models.JournalRow, error)
	Get(ctx context.Context, userID, date string) (*models.JournalRow, error)
	Put(ctx context.Context, row *models.JournalRow) (*models.JournalRow, error)
	Delete(ctx context.Context, userID, date string) error
	Limits() models.Limits
}

type Server struct {
	accounts  Accounts
	bundles   Bundles
	journal   Journal
	jwtSecret []byte
	logger    logging.Logger
	router    *mux.Router
}

func NewServer(accounts Accounts, bundles Bundles, journal Journal, secretKey string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		accounts:  accounts,
		bundles:   bundles,
		journal:   journal,
		jwtSecret: []byte(secretKey),
		logger:    logger.With("module", "http_server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/salt", s.salt).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/config", s.config).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware(s.jwtSecret, s.reject))
	protected.HandleFunc("/vault/bundle", s.getBundle).Methods(http.MethodGet)
	protected.HandleFunc("/vault/bundle", s.putBundle).Methods(http.MethodPut)
	protected.HandleFunc("/journal", s.listEntries).Methods(http.MethodGet)
	protected.HandleFunc("/journal/{date}", s.getEntry).Methods(http.MethodGet)
	protected.HandleFunc("/journal/{date}", s.putEntry).Methods(http.MethodPut)
	protected.HandleFunc("/journal/{date}", s.deleteEntry).Methods(http.MethodDelete)

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
