package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chat-assistant/internal/infra/api"
	"chat-assistant/internal/infra/i18n"
	"chat-assistant/internal/usecase"
)

// Sessions hands out the chat session of one client.
type Sessions interface {
	Get(ctx context.Context, clientID string) *usecase.ChatSession
}

type Server struct {
	sessions Sessions
	auth     *ClientAuth
	tr       *i18n.Translator
	lang     string
	log      *zerolog.Logger
	pages    *pages
	hub      *Hub
	timeout  time.Duration
}

type Options struct {
	Language       string
	RequestTimeout time.Duration // per request, websocket excluded; 0 = none
}

func NewServer(sessions Sessions, auth *ClientAuth, tr *i18n.Translator, opts Options, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "web").Logger()
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	return &Server{
		sessions: sessions,
		auth:     auth,
		tr:       tr,
		lang:     lang,
		log:      &l,
		pages:    newPages(tr),
		hub:      NewHub(&l),
		timeout:  opts.RequestTimeout,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the router: the HTML page, the JSON session API and the
// operational endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(api.TraceID())
	r.Use(api.RequestLog(s.log))
	r.Use(api.Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(api.Timeout(s.timeout))
		r.Use(s.auth.Identify(s.log))
		r.Get("/", s.handleIndex)
		r.Get("/about", s.handleAbout)
		r.Post("/api-key", s.handleSaveKeyForm)
		r.Post("/reset", s.handleResetForm)
		r.Post("/ask", s.handleAskForm)
	})

	r.Route("/api/v1/session", func(r chi.Router) {
		r.Use(s.auth.Require(s.unauthenticated))
		r.Get("/ws", s.handleWS)
		r.Group(func(r chi.Router) {
			r.Use(api.Timeout(s.timeout))
			r.Use(chimiddleware.AllowContentType("application/json"))
			r.Get("/", s.handleGetSession)
			r.Get("/transcript", s.handleGetTranscript)
			r.Put("/question", s.handlePutQuestion)
			r.Put("/api-key", s.handlePutAPIKey)
			r.Post("/api-key/save", s.handleSaveAPIKey)
			r.Post("/reset", s.handleReset)
			r.Post("/submit", s.handleSubmit)
		})
	})
	return r
}

func (s *Server) session(r *http.Request) *usecase.ChatSession {
	return s.sessions.Get(r.Context(), ClientID(r.Context()))
}
