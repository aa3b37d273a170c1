package meeting

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"votesecret/entity"
	"votesecret/internal/http-server/handlers/errors"
	"votesecret/lib/api/response"
	"votesecret/lib/sl"
)

type Core interface {
	CreateMeeting(ctx context.Context, req *entity.CreateMeetingRequest) (*entity.Meeting, error)
	MeetingByCode(ctx context.Context, code string) (*entity.Meeting, error)
	OrganizerView(ctx context.Context, meetingID string) (*entity.OrganizerView, error)
	Heartbeat(ctx context.Context, meetingID, name string) error
	Health(ctx context.Context) error
}

func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	return logger.With(
		sl.Module("http.handlers.meeting"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func Create(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.CreateMeetingRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		meeting, err := handler.CreateMeeting(r.Context(), &req)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(meeting))
	}
}

// ByCode resolves the code a participant typed.
func ByCode(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		meeting, err := handler.MeetingByCode(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(meeting))
	}
}

func Organizer(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(sl.Meeting(meetingID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		view, err := handler.OrganizerView(r.Context(), meetingID)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(view))
	}
}

func Heartbeat(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(sl.Meeting(meetingID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.HeartbeatRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		if err := handler.Heartbeat(r.Context(), meetingID, req.OrganizerName); err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func Health(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}
		if err := handler.Health(r.Context()); err != nil {
			log.Error("health check", sl.Err(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("Storage not available"))
			return
		}
		render.JSON(w, r, response.Ok(map[string]string{"status": "ok"}))
	}
}
