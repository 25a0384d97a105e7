package server

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"cachet/internal/auth"
	"cachet/internal/domain"
	"cachet/internal/relay"
)

// Server owns the HTTP surface and the realtime core. Construct it with
// New and mount Handler; there are no package-level singletons, so tests
// can run any number of servers side by side.
type Server struct {
	accounts  domain.AccountStore
	history   domain.HistoryStore
	authority *auth.Authority
	registry  *relay.Registry
	router    *relay.Router
	gateway   *relay.Gateway
	log       logrus.FieldLogger
}

// New wires the full server: registry, router (with the history recorder
// listening), gateway, and the REST handlers around them.
func New(accounts domain.AccountStore, history domain.HistoryStore, authority *auth.Authority, log logrus.FieldLogger) *Server {
	registry := relay.NewRegistry(log)
	router := relay.NewRouter(registry, &historyRecorder{history: history, log: log}, log)
	gateway := relay.NewGateway(authority, registry, router, log)

	return &Server{
		accounts:  accounts,
		history:   history,
		authority: authority,
		registry:  registry,
		router:    router,
		gateway:   gateway,
		log:       log,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/identity/{id}/publicKey", s.requireAuth(s.handlePublicKey))
	mux.Handle("GET /api/me/privateKeyBlob", s.requireAuth(s.handlePrivateKeyBlob))
	mux.Handle("GET /api/users/search", s.requireAuth(s.handleSearch))
	mux.Handle("GET /api/messages", s.requireAuth(s.handleHistory))
	mux.Handle("GET /ws", s.gateway)

	return mux
}

// historyRecorder observes routing outcomes and appends every envelope, so
// offline recipients can read it back over /api/messages. The router itself
// never writes history.
type historyRecorder struct {
	history domain.HistoryStore
	log     logrus.FieldLogger
}

func (r *historyRecorder) EnvelopeRelayed(env domain.Envelope, outcome domain.RelayOutcome) {
	if err := r.history.AppendEnvelope(env); err != nil {
		r.log.WithFields(logrus.Fields{
			"from":    env.From,
			"to":      env.To,
			"outcome": outcome.String(),
		}).WithError(err).Error("history append failed")
	}
}

var _ relay.EnvelopeListener = (*historyRecorder)(nil)
