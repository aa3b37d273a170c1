package report

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"votesecret/entity"
	"votesecret/internal/http-server/handlers/errors"
	"votesecret/lib/api/response"
	"votesecret/lib/names"
	"votesecret/lib/sl"
)

type Core interface {
	RequestReportGeneration(ctx context.Context, meetingID, requestedBy string) (*entity.ReportRequestResult, error)
	CastScrutatorVote(ctx context.Context, meetingID string, req *entity.ScrutatorVoteRequest) (*entity.ScrutatorVoteResult, error)
	CancelReportRequest(ctx context.Context, meetingID, requestedBy string) error
	DownloadReport(ctx context.Context, meetingID, requestedBy string) (*entity.ReportDocument, error)
	PartialReport(ctx context.Context, meetingID, requestedBy string) (*entity.ReportDocument, error)
}

func requestLogger(logger *slog.Logger, r *http.Request, meetingID string) *slog.Logger {
	return logger.With(
		sl.Module("http.handlers.report"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		sl.Meeting(meetingID),
	)
}

func requestedBy(r *http.Request) (string, error) {
	name := names.Clean(r.URL.Query().Get("requested_by"))
	if name == "" {
		return "", entity.Validation("requested_by is required")
	}
	return name, nil
}

// Request opens an approval round, or reports that the organizer may download directly.
func Request(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r, meetingID)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.ReportRequestBody
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		result, err := handler.RequestReportGeneration(r.Context(), meetingID, req.RequestedBy)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		log.With(
			slog.Bool("direct", result.DirectGeneration),
			slog.Int("majority", result.MajorityNeeded),
		).Info("report requested")
		render.JSON(w, r, response.Ok(result))
	}
}

func Cancel(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r, meetingID)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		name, err := requestedBy(r)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		if err = handler.CancelReportRequest(r.Context(), meetingID, name); err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

func Vote(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r, meetingID)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		var req entity.ScrutatorVoteRequest
		if err := render.Bind(r, &req); err != nil {
			errors.Bind(w, r, log, err)
			return
		}
		result, err := handler.CastScrutatorVote(r.Context(), meetingID, &req)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Ok(result))
	}
}

// Download serves the final report. The meeting is gone once this succeeds.
func Download(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r, meetingID)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		name, err := requestedBy(r)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		doc, err := handler.DownloadReport(r.Context(), meetingID, name)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		writeDocument(w, log, doc)
	}
}

// Partial serves the current results without closing the meeting.
func Partial(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := chi.URLParam(r, "id")
		log := requestLogger(logger, r, meetingID)
		if handler == nil {
			errors.Unavailable(w, r, log)
			return
		}

		name, err := requestedBy(r)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		doc, err := handler.PartialReport(r.Context(), meetingID, name)
		if err != nil {
			errors.Render(w, r, log, err)
			return
		}
		writeDocument(w, log, doc)
	}
}

func writeDocument(w http.ResponseWriter, log *slog.Logger, doc *entity.ReportDocument) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Content); err != nil {
		log.Error("write report", sl.Err(err))
		return
	}
	log.With(
		slog.String("file", doc.FileName),
		slog.Int("size", len(doc.Content)),
	).Info("report delivered")
}
