package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"votesecret/entity"
	"votesecret/internal/http-server/handlers/errors"
	"votesecret/lib/sl"
)

type Core interface {
	Meeting(ctx context.Context, id string) (*entity.Meeting, error)
}

// Relay upgrades the connection and joins it to the meeting room.
type Relay interface {
	Subscribe(w http.ResponseWriter, r *http.Request, meetingID string) error
}

// Subscribe only accepts rooms of active meetings; the upgrade writes its own
// error response when the handshake is bad.
func Subscribe(logger *slog.Logger, handler Core, relay Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := logger.With(
			sl.Module("http.handlers.ws"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Meeting(meetingID),
		)
		if handler == nil || relay == nil {
			errors.Unavailable(w, r, log)
			return
		}

		if _, err := handler.Meeting(r.Context(), meetingID); err != nil {
			errors.Render(w, r, log, err)
			return
		}
		if err := relay.Subscribe(w, r, meetingID); err != nil {
			log.Debug("subscribe", sl.Err(err))
		}
	}
}
