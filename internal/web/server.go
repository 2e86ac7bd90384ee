// Package web serves the HTML front end and the stats API.
package web

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/metrics"
	"github.com/jbweber/anvil/internal/store"
	"github.com/jbweber/anvil/internal/vm"
)

// instanceManager defines the workflows the handlers call.
//
// In production, this is satisfied by *vm.Manager.
type instanceManager interface {
	List(ctx context.Context) ([]store.Instance, error)
	Get(ctx context.Context, id uint) (*store.Instance, error)
	Details(ctx context.Context, id uint) (*vm.Details, error)
	Create(ctx context.Context, req vm.CreateRequest) (*vm.CreateResult, error)
	Perform(ctx context.Context, action vm.Action, id uint) (*store.Instance, error)
	Clone(ctx context.Context, sourceID uint, req vm.CloneRequest) (*store.Instance, error)
	InstallService(ctx context.Context, id uint, req vm.InstallServiceRequest) (*store.Service, error)
	CreateUser(ctx context.Context, id uint, req vm.CreateUserRequest) (*store.VMUser, error)
	Stats(ctx context.Context, id uint) (json.RawMessage, error)
}

// Options configures a Server.
type Options struct {
	// SessionSecret signs the flash cookie. A random key is used when empty,
	// which invalidates flashes across restarts.
	SessionSecret string

	// Gatherer backs /metrics. The endpoint is not registered when nil.
	Gatherer prometheus.Gatherer

	// OSTypes and Services populate the create form.
	OSTypes  []string
	Services []string

	Logger logrus.FieldLogger
}

// Server routes requests to the instance workflows.
type Server struct {
	mgr       instanceManager
	sessions  sessions.Store
	templates templates
	log       logrus.FieldLogger
	gatherer  prometheus.Gatherer
	form      createForm
}

// New creates a Server for mgr.
func New(mgr *vm.Manager, opts Options) (*Server, error) {
	return newServer(mgr, opts)
}

// newServer creates a Server with an injected manager.
// This allows for testing by accepting interfaces instead of concrete types.
func newServer(mgr instanceManager, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	key := []byte(opts.SessionSecret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		log.Warn("no session secret configured, using a random key")
	}

	cookies := sessions.NewCookieStore(key)
	cookies.Options.HttpOnly = true
	cookies.Options.SameSite = http.SameSiteLaxMode

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	return &Server{
		mgr:       mgr,
		sessions:  cookies,
		templates: tmpl,
		log:       log,
		gatherer:  opts.Gatherer,
		form:      newCreateForm(opts.OSTypes, opts.Services),
	}, nil
}

// Router returns the route table without middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/create", s.handleCreateForm).Methods(http.MethodGet)
	r.HandleFunc("/create", s.handleCreate).Methods(http.MethodPost)

	// Specific instance routes must precede the generic action route.
	r.HandleFunc("/instance/details/{id:[0-9]+}", s.handleDetails).Methods(http.MethodGet)
	r.HandleFunc("/instance/monitor/{id:[0-9]+}", s.handleMonitor).Methods(http.MethodGet)
	r.HandleFunc("/instance/clone/{id:[0-9]+}", s.handleClone).Methods(http.MethodPost)
	r.HandleFunc("/instance/{id:[0-9]+}/install_service", s.handleInstallService).Methods(http.MethodPost)
	r.HandleFunc("/instance/{id:[0-9]+}/create_user", s.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/instance/{action}/{id:[0-9]+}", s.handleAction).Methods(http.MethodGet)

	r.HandleFunc("/api/instance/{id:[0-9]+}/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	}

	return r
}

// Handler returns the router wrapped in the common middleware: request ids,
// access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	common := alice.New(
		requestIDHandler,
		func(h http.Handler) http.Handler {
			return accessLogHandler(s.log, h)
		},
		handlers.RecoveryHandler(
			handlers.RecoveryLogger(s.log),
			handlers.PrintRecoveryStack(true),
		),
	)
	return common.Then(s.Router())
}
