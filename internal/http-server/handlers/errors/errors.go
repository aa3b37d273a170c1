package errors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"votesecret/entity"
	"votesecret/lib/api/response"
	"votesecret/lib/sl"
)

func NotFound(_ *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("Requested resource not found"))
	}
}

func NotAllowed(_ *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusMethodNotAllowed)
		render.JSON(w, r, response.Error("Method not allowed"))
	}
}

// Status maps an error kind to the HTTP status code.
func Status(kind entity.Kind) int {
	switch kind {
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindForbidden:
		return http.StatusForbidden
	case entity.KindDuplicateName, entity.KindInvalidState, entity.KindAlreadyVoted,
		entity.KindDuplicateVote, entity.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Render writes err as a failed response. Internal errors are logged and
// their details kept out of the response.
func Render(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := entity.KindOf(err)
	status := Status(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
		message = "Internal server error"
	} else {
		log.With(slog.String("kind", string(kind))).Debug("request rejected", sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, response.Fail(string(kind), message))
}

// Bind renders a request decoding failure; malformed JSON is a validation error.
func Bind(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if entity.KindOf(err) == entity.KindInternal {
		err = entity.Validation("invalid request: %v", err)
	}
	Render(w, r, log, err)
}

// Unavailable is returned when a handler was wired without its service.
func Unavailable(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	log.Error("service not available")
	render.Status(r, http.StatusServiceUnavailable)
	render.JSON(w, r, response.Error("Service not available"))
}
