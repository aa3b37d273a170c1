package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"votesecret/internal/config"
	handlerErrors "votesecret/internal/http-server/handlers/errors"
	"votesecret/internal/http-server/handlers/meeting"
	"votesecret/internal/http-server/handlers/participant"
	"votesecret/internal/http-server/handlers/poll"
	"votesecret/internal/http-server/handlers/report"
	"votesecret/internal/http-server/handlers/scrutator"
	"votesecret/internal/http-server/handlers/ws"
	"votesecret/internal/http-server/middleware/authenticate"
	"votesecret/internal/http-server/middleware/timeout"
	"votesecret/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	meeting.Core
	participant.Core
	poll.Core
	scrutator.Core
	report.Core
	ws.Core
}

// NewRouter builds the route table. relay may be nil, then the WebSocket
// endpoint answers 503.
func NewRouter(log *slog.Logger, handler Handler, relay ws.Relay) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.NotFound(handlerErrors.NotFound(log))
	router.MethodNotAllowed(handlerErrors.NotAllowed(log))

	router.Group(func(r chi.Router) {
		r.Use(timeout.Timeout(5))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", meeting.Health(log, handler))

		r.Route("/meetings", func(m chi.Router) {
			m.Post("/", meeting.Create(log, handler))
			m.Get("/{id}", meeting.ByCode(log, handler))
			m.Get("/{id}/organizer", meeting.Organizer(log, handler))
			m.Post("/{id}/heartbeat", meeting.Heartbeat(log, handler))

			m.Post("/{id}/polls", poll.Create(log, handler))
			m.Get("/{id}/polls", poll.OrganizerList(log, handler))
			m.Get("/{id}/polls/participant", poll.ParticipantList(log, handler))

			m.Post("/{id}/scrutators", scrutator.Register(log, handler))
			m.Get("/{id}/scrutators", scrutator.List(log, handler))

			m.Post("/{id}/request-report", report.Request(log, handler))
			m.Delete("/{id}/request-report", report.Cancel(log, handler))
			m.Post("/{id}/scrutator-vote", report.Vote(log, handler))
			m.Get("/{id}/report", report.Download(log, handler))
			m.Get("/{id}/partial-report", report.Partial(log, handler))
		})

		r.Route("/participants", func(p chi.Router) {
			p.Post("/join", participant.Join(log, handler))
			p.Post("/{id}/approve", participant.Approve(log, handler))
			p.Get("/{id}/status", participant.Status(log, handler))
		})

		r.Route("/polls", func(p chi.Router) {
			p.Post("/{id}/start", poll.Start(log, handler))
			p.Post("/{id}/close", poll.Close(log, handler))
			p.Get("/{id}/results", poll.Results(log, handler))
			p.With(authenticate.New(log, handler)).Get("/{id}/voted", poll.Voted(log, handler))
		})

		r.With(authenticate.New(log, handler)).Post("/votes", poll.Vote(log, handler))

		r.Route("/scrutators", func(s chi.Router) {
			s.Post("/join", scrutator.Join(log, handler))
			s.Post("/{id}/approve", scrutator.Approve(log, handler))
		})
	})

	// the upgraded connection outlives the request, no timeout here
	router.Get("/ws/meetings/{id}", ws.Subscribe(log, handler, relay))

	return router
}

// New serves the API until ctx is done, then shuts the server down gracefully.
func New(ctx context.Context, conf *config.Config, log *slog.Logger, handler Handler, relay ws.Relay) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  NewRouter(log, handler, relay),
		ErrorLog: httpLog,
		// hijacked WebSocket connections manage their own deadlines
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.httpServer.Shutdown(shutdownCtx); err != nil {
			server.log.Error("shutdown", sl.Err(err))
		}
	}()

	err = server.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
