package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/google/uuid"

	"votesecret/entity"
	"votesecret/internal/report"
	"votesecret/lib/codes"
	"votesecret/lib/names"
	"votesecret/lib/sl"
)

func (c *Core) CreateMeeting(ctx context.Context, req *entity.CreateMeetingRequest) (*entity.Meeting, error) {
	title := names.Clean(req.Title)
	organizer := names.Clean(req.OrganizerName)
	if title == "" {
		return nil, entity.Validation("title is required")
	}
	if organizer == "" {
		return nil, entity.Validation("organizer name is required")
	}
	if len([]rune(title)) > entity.MaxTitleLength {
		return nil, entity.Validation("title is longer than %d characters", entity.MaxTitleLength)
	}
	if len([]rune(organizer)) > entity.MaxNameLength {
		return nil, entity.Validation("organizer name is longer than %d characters", entity.MaxNameLength)
	}

	now := c.now()
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := c.codes.Meeting()
		if err != nil {
			return nil, err
		}
		meeting := &entity.Meeting{
			ID:                uuid.NewString(),
			Title:             title,
			OrganizerName:     organizer,
			OrganizerTimezone: req.OrganizerTimezone,
			MeetingCode:       code,
			Status:            entity.MeetingActive,
			OrganizerPresent:  true,
			LastHeartbeat:     now,
			CreatedAt:         now,
		}
		err = c.repo.CreateMeeting(ctx, meeting)
		if isDuplicate(err) {
			c.log.Debug("meeting code collision", slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save meeting: %w", err)
		}
		c.log.With(sl.Meeting(meeting.ID), slog.String("code", code)).Info("meeting created")
		return meeting, nil
	}
	return nil, fmt.Errorf("no free meeting code after %d attempts", codeAttempts)
}

// MeetingByCode is what participants see when they type a code.
func (c *Core) MeetingByCode(ctx context.Context, code string) (*entity.Meeting, error) {
	code = codes.Normalize(code)
	if c.codes.Classify(code) == codes.KindScrutator {
		return nil, entity.NotFound("this is a scrutator access code")
	}
	meeting, err := c.repo.GetMeetingByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	if !meeting.IsActive() {
		return nil, entity.NotFound("meeting not found")
	}
	return meeting.Public(), nil
}

// Meeting returns an open meeting by id, without its scrutator code.
func (c *Core) Meeting(ctx context.Context, id string) (*entity.Meeting, error) {
	meeting, err := c.activeMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	return meeting.Public(), nil
}

func (c *Core) OrganizerView(ctx context.Context, meetingID string) (*entity.OrganizerView, error) {
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	participants, err := c.repo.ListParticipants(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	polls, err := c.repo.ListPolls(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	scrutators, err := c.repo.ListScrutators(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list scrutators: %w", err)
	}
	view := &entity.OrganizerView{
		Meeting:      meeting,
		Participants: participants,
		Scrutators:   scrutators,
	}
	for _, p := range polls {
		view.Polls = append(view.Polls, p.OrganizerView())
	}
	return view, nil
}

// Heartbeat keeps a meeting alive. It is a no-op for meetings that are gone,
// so a client that missed the closing event can keep calling it.
func (c *Core) Heartbeat(ctx context.Context, meetingID, name string) error {
	meeting, err := c.repo.GetMeeting(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("load meeting: %w", err)
	}
	if !meeting.IsActive() {
		return nil
	}
	organizer := names.Equal(meeting.OrganizerName, name)
	if !organizer && !meeting.IsLeader(name) {
		return entity.Forbidden("only the organizer may send heartbeats")
	}
	if err = c.repo.TouchMeeting(ctx, meetingID, c.now(), organizer); err != nil {
		return fmt.Errorf("touch meeting: %w", err)
	}
	if organizer && !meeting.OrganizerPresent {
		c.log.With(sl.Meeting(meetingID)).Info("organizer is back")
		c.emit(&entity.Event{
			Type:      entity.EventOrganizerReturned,
			MeetingID: meetingID,
			NewLeader: meeting.OrganizerName,
		})
	}
	return nil
}

// SweepOrganizerPresence marks organizers without a recent heartbeat as absent and
// hands leadership to the longest-serving approved scrutator, if there is one.
func (c *Core) SweepOrganizerPresence(ctx context.Context) (int, error) {
	meetings, err := c.repo.AbsentOrganizers(ctx, c.now().Add(-c.conf.OrganizerAbsentAfter))
	if err != nil {
		return 0, fmt.Errorf("list absent organizers: %w", err)
	}
	count := 0
	for _, meeting := range meetings {
		log := c.log.With(sl.Meeting(meeting.ID))
		leader, err := c.seniorScrutator(ctx, meeting.ID)
		if err != nil {
			log.Error("pick leader", sl.Err(err))
			continue
		}
		name := ""
		if leader != nil {
			name = leader.Name
		}
		if err = c.repo.SetLeadership(ctx, meeting.ID, false, name); err != nil {
			if !isStale(err) {
				log.Error("set leadership", sl.Err(err))
			}
			continue
		}
		count++
		if leader == nil {
			log.Info("organizer absent, no scrutator to take over")
			c.emit(&entity.Event{Type: entity.EventOrganizerAbsent, MeetingID: meeting.ID})
			continue
		}
		log.With(slog.String("leader", name)).Info("leadership transferred")
		c.emit(&entity.Event{
			Type:      entity.EventLeadershipTransferred,
			MeetingID: meeting.ID,
			Scrutator: leader,
			NewLeader: name,
		})
	}
	return count, nil
}

func (c *Core) seniorScrutator(ctx context.Context, meetingID string) (*entity.Scrutator, error) {
	approved, err := c.approvedScrutators(ctx, meetingID)
	if err != nil || len(approved) == 0 {
		return nil, err
	}
	sort.SliceStable(approved, func(i, j int) bool {
		a, b := approved[i].ApprovedAt, approved[j].ApprovedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})
	return approved[0], nil
}

// DownloadReport hands out the final report to the organizer or the acting leader.
// A report produced by an approved scrutator round is returned once; without
// approved scrutators the report is generated here, which closes and purges the meeting.
func (c *Core) DownloadReport(ctx context.Context, meetingID, requestedBy string) (*entity.ReportDocument, error) {
	if names.Key(requestedBy) == "" {
		return nil, entity.Validation("requested_by is required")
	}
	doc, err := c.repo.GetReport(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if doc != nil && c.now().Before(doc.ExpiresAt) {
		if !doc.IsRecipient(requestedBy) {
			return nil, entity.Forbidden("only the organizer can download the report")
		}
		return c.takeReport(ctx, meetingID)
	}
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !meeting.IsLeader(requestedBy) {
		return nil, entity.Forbidden("only the organizer can download the report")
	}
	approved, err := c.approvedScrutators(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if len(approved) > 0 {
		round, err := c.repo.GetReportRequest(ctx, meetingID)
		if err != nil {
			return nil, fmt.Errorf("load report request: %w", err)
		}
		if round != nil && !round.Expired(c.now()) {
			return nil, entity.Forbidden("report generation is waiting for the scrutators' decision")
		}
		return nil, entity.Forbidden("report generation needs the approval of a majority of %d scrutators", len(approved))
	}
	if err = c.generateReportAndClose(ctx, meeting, requestedBy); err != nil {
		return nil, err
	}
	return c.takeReport(ctx, meetingID)
}

func (c *Core) takeReport(ctx context.Context, meetingID string) (*entity.ReportDocument, error) {
	doc, err := c.repo.TakeReport(ctx, meetingID, c.now())
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if doc == nil {
		return nil, entity.NotFound("report not found")
	}
	return doc, nil
}

// PartialReport renders the current state without closing anything. It is only
// available while the organizer is away, to the acting leader or an approved scrutator.
func (c *Core) PartialReport(ctx context.Context, meetingID, requestedBy string) (*entity.ReportDocument, error) {
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if meeting.OrganizerPresent {
		return nil, entity.Forbidden("partial report is only available while the organizer is absent")
	}
	if !meeting.IsLeader(requestedBy) {
		s, err := c.repo.GetScrutatorByName(ctx, meetingID, names.Key(requestedBy))
		if err != nil {
			return nil, fmt.Errorf("load scrutator: %w", err)
		}
		if !s.IsApproved() {
			return nil, entity.Forbidden("only approved scrutators may request a partial report")
		}
	}
	return c.buildDocument(ctx, meeting, true)
}

// generateReportAndClose is the only way a meeting ends with a report. Callers are
// DownloadReport, when no scrutator has to agree, and an approved scrutator round.
// The meeting is closed first, which makes it unreadable and stops a second
// generation, then the report is stored, marked as stored and the data purged.
// The report can be downloaded by the leaders and by whoever asked for it.
func (c *Core) generateReportAndClose(ctx context.Context, meeting *entity.Meeting, requestedBy string) error {
	log := c.log.With(sl.Meeting(meeting.ID))
	err := c.repo.CloseMeeting(ctx, meeting.ID, entity.ReasonReport, c.now())
	if isStale(err) {
		return entity.NotFound("meeting not found")
	}
	if err != nil {
		return fmt.Errorf("close meeting: %w", err)
	}
	if err = c.storeReport(ctx, meeting, reportRecipients(meeting, requestedBy)); err != nil {
		log.Error("store report; recovery will retry", sl.Err(err))
		return err
	}
	if err = c.repo.MarkReportStored(ctx, meeting.ID, c.now()); err != nil {
		log.Error("mark report stored", sl.Err(err))
	}
	if err = c.repo.PurgeMeeting(ctx, meeting.ID); err != nil {
		// the meeting is already unreadable; the recovery job completes the purge
		log.Error("purge meeting", sl.Err(err))
	} else {
		log.Info("meeting purged after report")
	}
	c.emit(&entity.Event{
		Type:      entity.EventMeetingClosed,
		MeetingID: meeting.ID,
		Reason:    entity.ReasonReport,
	})
	return nil
}

func reportRecipients(meeting *entity.Meeting, requestedBy string) []string {
	keys := meeting.LeaderKeys()
	key := names.Key(requestedBy)
	if key == "" || slices.Contains(keys, key) {
		return keys
	}
	return append(keys, key)
}

func (c *Core) storeReport(ctx context.Context, meeting *entity.Meeting, recipients []string) error {
	doc, err := c.buildDocument(ctx, meeting, false)
	if err != nil {
		return err
	}
	doc.Recipients = recipients
	if err = c.repo.SaveReport(ctx, doc); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (c *Core) buildDocument(ctx context.Context, meeting *entity.Meeting, partial bool) (*entity.ReportDocument, error) {
	participants, err := c.repo.ListParticipants(ctx, meeting.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	scrutators, err := c.repo.ListScrutators(ctx, meeting.ID)
	if err != nil {
		return nil, fmt.Errorf("list scrutators: %w", err)
	}
	polls, err := c.repo.ListPolls(ctx, meeting.ID)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	now := c.now()
	data := report.Build(meeting, participants, scrutators, polls, now, partial)
	content, err := c.renderer.Render(data)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return &entity.ReportDocument{
		MeetingID:   meeting.ID,
		FileName:    report.FileName(data),
		ContentType: c.renderer.ContentType(),
		Content:     content,
		Data:        data,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.conf.ReportTTL),
	}, nil
}

// CleanupAbandoned purges meetings whose organizer side stopped sending heartbeats.
// No report is produced for them.
func (c *Core) CleanupAbandoned(ctx context.Context) (int, error) {
	meetings, err := c.repo.StaleMeetings(ctx, c.now().Add(-c.conf.HeartbeatTTL))
	if err != nil {
		return 0, fmt.Errorf("list stale meetings: %w", err)
	}
	count := 0
	for _, meeting := range meetings {
		log := c.log.With(sl.Meeting(meeting.ID))
		err = c.repo.CloseMeeting(ctx, meeting.ID, entity.ReasonAbandoned, c.now())
		if isStale(err) {
			continue
		}
		if err != nil {
			log.Error("close abandoned meeting", sl.Err(err))
			continue
		}
		if err = c.repo.PurgeMeeting(ctx, meeting.ID); err != nil {
			log.Error("purge abandoned meeting", sl.Err(err))
			continue
		}
		count++
		log.Info("abandoned meeting purged")
		c.emit(&entity.Event{
			Type:      entity.EventMeetingClosed,
			MeetingID: meeting.ID,
			Reason:    entity.ReasonAbandoned,
		})
	}
	return count, nil
}

// RecoverPurges finishes meetings that were closed but not fully purged, for
// example after a crash. A meeting closed for its report gets the report
// stored first, unless it was stored before; a report already downloaded is
// never built again.
func (c *Core) RecoverPurges(ctx context.Context) (int, error) {
	meetings, err := c.repo.ClosedMeetings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list closed meetings: %w", err)
	}
	threshold := c.now().Add(-recoveryGrace)
	count := 0
	for _, meeting := range meetings {
		if meeting.ClosedAt != nil && meeting.ClosedAt.After(threshold) {
			continue
		}
		log := c.log.With(sl.Meeting(meeting.ID), slog.String("reason", meeting.CloseReason))
		if meeting.CloseReason == entity.ReasonReport && meeting.ReportStoredAt == nil {
			exists, err := c.repo.ReportExists(ctx, meeting.ID)
			if err != nil {
				log.Error("check report", sl.Err(err))
				continue
			}
			if !exists {
				if err = c.storeReport(ctx, meeting, meeting.LeaderKeys()); err != nil {
					log.Error("recover report", sl.Err(err))
					continue
				}
			}
			if err = c.repo.MarkReportStored(ctx, meeting.ID, c.now()); err != nil {
				log.Error("mark report stored", sl.Err(err))
				continue
			}
		}
		if err = c.repo.PurgeMeeting(ctx, meeting.ID); err != nil {
			log.Error("recover purge", sl.Err(err))
			continue
		}
		count++
		log.Warn("interrupted purge completed")
		c.emit(&entity.Event{
			Type:      entity.EventMeetingClosed,
			MeetingID: meeting.ID,
			Reason:    meeting.CloseReason,
		})
	}
	return count, nil
}

// DeleteExpiredReports drops reports nobody downloaded in time.
func (c *Core) DeleteExpiredReports(ctx context.Context) (int64, error) {
	return c.repo.DeleteExpiredReports(ctx, c.now())
}
