package scrutator

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
	RegisterScrutators(ctx context.Context, meetingID string, names []string) (*entity.ScrutatorBatch, error)
	Scrutators(ctx context.Context, meetingID string) (*entity.ScrutatorList, error)
	JoinAsScrutator(ctx context.Context, req *entity.ScrutatorJoinRequest) (*entity.ScrutatorJoinResult, error)
	ApproveScrutator(ctx context.Context, scrutatorID string, approved bool) (*entity.Scrutator, error)
}

func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	return logger.With(
		sl.Module("http.handlers.scrutator"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func Register(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(sl.Meeting(meetingID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.ScrutatorsRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		batch, err := handler.RegisterScrutators(r.Context(), meetingID, req.Names)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(batch))
	}
}

func List(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(sl.Meeting(meetingID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		list, err := handler.Scrutators(r.Context(), meetingID)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(list))
	}
}

// Join lets a listed name in; unknown names get 403.
func Join(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.ScrutatorJoinRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		result, err := handler.JoinAsScrutator(r.Context(), &req)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(result))
	}
}

func Approve(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(slog.String("scrutator", id))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.ApprovalRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		scrutator, err := handler.ApproveScrutator(r.Context(), id, *req.Approved)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(scrutator))
	}
}
