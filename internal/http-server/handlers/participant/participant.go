package participant

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
	RequestJoin(ctx context.Context, req *entity.JoinRequest) (*entity.JoinResult, error)
	ApproveParticipant(ctx context.Context, participantID string, approved bool) (*entity.Participant, error)
	ParticipantStatus(ctx context.Context, participantID string) (*entity.ParticipantStatus, error)
}

// Join answers with the participant and its bearer token; the token is shown only here.
func Join(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.With(
			sl.Module("http.handlers.participant"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.JoinRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		result, err := handler.RequestJoin(r.Context(), &req)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		log.With(
			sl.Meeting(result.Participant.MeetingID),
			sl.Secret("token", result.Token),
		).Debug("participant joined")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(result))
	}
}

func Approve(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logger.With(
			sl.Module("http.handlers.participant"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("participant", id),
		)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.ApprovalRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		participant, err := handler.ApproveParticipant(r.Context(), id, *req.Approved)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(participant))
	}
}

func Status(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logger.With(
			sl.Module("http.handlers.participant"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("participant", id),
		)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		status, err := handler.ParticipantStatus(r.Context(), id)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(status))
	}
}
