package poll

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"votesecret/entity"
	"votesecret/internal/http-server/handlers/errors"
	"votesecret/lib/api/cont"
	"votesecret/lib/api/response"
	"votesecret/lib/sl"
)

type Core interface {
	CreatePoll(ctx context.Context, meetingID string, req *entity.CreatePollRequest) (*entity.Poll, error)
	StartPoll(ctx context.Context, pollID string) (*entity.Poll, error)
	ClosePoll(ctx context.Context, pollID string) (*entity.Poll, error)
	SubmitVote(ctx context.Context, participantID string, req *entity.VoteRequest) error
	OrganizerPolls(ctx context.Context, meetingID string) ([]entity.PollView, error)
	ParticipantPolls(ctx context.Context, meetingID string) ([]entity.PollView, error)
	PollResults(ctx context.Context, pollID string) (*entity.PollResults, error)
	HasVoted(ctx context.Context, participantID, pollID string) (bool, error)
}

type votedResponse struct {
	PollID string `json:"poll_id"`
	Voted  bool   `json:"voted"`
}

func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	return logger.With(
		sl.Module("http.handlers.poll"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func Create(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(sl.Meeting(meetingID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.CreatePollRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		poll, err := handler.CreatePoll(r.Context(), meetingID, &req)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		log.With(slog.String("poll", poll.ID), slog.Int("options", len(poll.Options))).Debug("poll created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(poll))
	}
}

// Start and Close share the shape: poll id in the path, poll in the answer.
func Start(logger *slog.Logger, handler Core) http.HandlerFunc {
	return transition(logger, handler, func(h Core) func(context.Context, string) (*entity.Poll, error) {
		return h.StartPoll
	})
}

func Close(logger *slog.Logger, handler Core) http.HandlerFunc {
	return transition(logger, handler, func(h Core) func(context.Context, string) (*entity.Poll, error) {
		return h.ClosePoll
	})
}

func transition(logger *slog.Logger, handler Core, pick func(Core) func(context.Context, string) (*entity.Poll, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pollID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(slog.String("poll", pollID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		poll, err := pick(handler)(r.Context(), pollID)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(poll))
	}
}

// Vote takes the voter from the authenticated request, never from the body.
func Vote(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}
		participant := cont.GetParticipant(r.Context())
		if participant == nil {
			errors.Render(w, r, log, entity.Forbidden("participant not authenticated"))
			return
		}

		var req entity.VoteRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		if err := handler.SubmitVote(r.Context(), participant.ID, &req); err != nil {
			errors.Render(w, r, log.With(slog.String("poll", req.PollID)), err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func Voted(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pollID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(slog.String("poll", pollID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}
		participant := cont.GetParticipant(r.Context())
		if participant == nil {
			errors.Render(w, r, log, entity.Forbidden("participant not authenticated"))
			return
		}

		voted, err := handler.HasVoted(r.Context(), participant.ID, pollID)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(votedResponse{PollID: pollID, Voted: voted}))
	}
}

// OrganizerList shows live counts.
func OrganizerList(logger *slog.Logger, handler Core) http.HandlerFunc {
	return list(logger, handler, func(h Core) func(context.Context, string) ([]entity.PollView, error) {
		return h.OrganizerPolls
	})
}

// ParticipantList hides counts while a poll is open.
func ParticipantList(logger *slog.Logger, handler Core) http.HandlerFunc {
	return list(logger, handler, func(h Core) func(context.Context, string) ([]entity.PollView, error) {
		return h.ParticipantPolls
	})
}

func list(logger *slog.Logger, handler Core, pick func(Core) func(context.Context, string) ([]entity.PollView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(sl.Meeting(meetingID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		polls, err := pick(handler)(r.Context(), meetingID)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(polls))
	}
}

func Results(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pollID := chi.URLParam(r, "id")
		log := requestLogger(logger, r).With(slog.String("poll", pollID))
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		results, err := handler.PollResults(r.Context(), pollID)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(results))
	}
}
