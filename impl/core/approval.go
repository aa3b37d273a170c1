package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"votesecret/entity"
	"votesecret/lib/names"
	"votesecret/lib/sl"
)

// RequestReportGeneration opens a scrutator round. Without approved scrutators
// there is nobody to ask and the caller may download the report directly.
func (c *Core) RequestReportGeneration(ctx context.Context, meetingID, requestedBy string) (*entity.ReportRequestResult, error) {
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !meeting.IsLeader(requestedBy) {
		return nil, entity.Forbidden("only the organizer may request the report")
	}
	approved, err := c.approvedScrutators(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return &entity.ReportRequestResult{
			DirectGeneration: true,
			Message:          "no scrutators, the report can be generated directly",
		}, nil
	}

	existing, err := c.repo.GetReportRequest(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load report request: %w", err)
	}
	if existing != nil {
		switch {
		case existing.Decision != entity.DecisionPending:
			// decided earlier but left behind when its removal failed
			if err = c.repo.DeleteReportRequest(ctx, existing.ID); err != nil {
				return nil, fmt.Errorf("discard decided report request: %w", err)
			}
		case !existing.Expired(c.now()):
			return nil, entity.Conflict("a report request is already waiting for the scrutators")
		default:
			c.expireRound(ctx, existing)
		}
	}

	now := c.now()
	round := &entity.ReportRequest{
		ID:             uuid.NewString(),
		MeetingID:      meetingID,
		RequestedBy:    names.Clean(requestedBy),
		ScrutatorCount: len(approved),
		MajorityNeeded: entity.MajorityNeeded(len(approved)),
		Votes:          []entity.ReportVote{},
		Decision:       entity.DecisionPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.conf.ReportRequestTTL),
	}
	for _, s := range approved {
		round.Eligible = append(round.Eligible, s.NameKey)
	}
	err = c.repo.CreateReportRequest(ctx, round)
	if isDuplicate(err) {
		return nil, entity.Conflict("a report request is already waiting for the scrutators")
	}
	if err != nil {
		return nil, fmt.Errorf("save report request: %w", err)
	}

	tally := round.Tally()
	c.log.With(sl.Meeting(meetingID), slog.Int("scrutators", round.ScrutatorCount)).Info("report requested")
	c.emit(&entity.Event{
		Type:        entity.EventReportRequested,
		MeetingID:   meetingID,
		RequestedBy: round.RequestedBy,
		Tally:       &tally,
	})
	return &entity.ReportRequestResult{
		RequestID:      round.ID,
		ScrutatorCount: round.ScrutatorCount,
		MajorityNeeded: round.MajorityNeeded,
		Message:        fmt.Sprintf("waiting for %d of %d scrutators to approve", round.MajorityNeeded, round.ScrutatorCount),
	}, nil
}

// CastScrutatorVote records one scrutator's answer. The vote is appended
// atomically and the round decided by a conditional write, so when several
// scrutators vote at once exactly one of them carries out the decision.
func (c *Core) CastScrutatorVote(ctx context.Context, meetingID string, req *entity.ScrutatorVoteRequest) (*entity.ScrutatorVoteResult, error) {
	if req.Approved == nil {
		return nil, entity.Validation("approved is required")
	}
	approved := *req.Approved
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	key := names.Key(req.ScrutatorName)
	scrutator, err := c.repo.GetScrutatorByName(ctx, meetingID, key)
	if err != nil {
		return nil, fmt.Errorf("load scrutator: %w", err)
	}
	if !scrutator.IsApproved() {
		return nil, entity.Forbidden("%q is not an approved scrutator of this meeting", req.ScrutatorName)
	}
	round, err := c.repo.GetReportRequest(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("load report request: %w", err)
	}
	if round == nil {
		return nil, entity.InvalidState("no report request is waiting for a decision")
	}
	if !round.IsEligible(key) {
		return nil, entity.Forbidden("%q was not a scrutator when the report was requested", scrutator.Name)
	}
	if round.Decision != entity.DecisionPending {
		return nil, entity.InvalidState("the report request was already %s", round.Decision)
	}
	if round.Expired(c.now()) {
		return nil, entity.InvalidState("the report request has expired")
	}
	if round.HasVoted(key) {
		return nil, entity.DuplicateVote("%s has already voted on this request", scrutator.Name)
	}

	round, err = c.repo.AddReportVote(ctx, round.ID, entity.ReportVote{
		Name:     scrutator.Name,
		NameKey:  key,
		Approved: approved,
		At:       c.now(),
	})
	if isDuplicate(err) {
		return nil, entity.DuplicateVote("%s has already voted on this request", scrutator.Name)
	}
	if isStale(err) {
		return nil, entity.InvalidState("the report request was already decided")
	}
	if err != nil {
		return nil, fmt.Errorf("record scrutator vote: %w", err)
	}

	tally := round.Tally()
	c.emit(&entity.Event{
		Type:          entity.EventScrutatorVoteSubmitted,
		MeetingID:     meetingID,
		ScrutatorName: scrutator.Name,
		Approved:      &approved,
		Tally:         &tally,
	})

	decision := round.Evaluate()
	result := &entity.ScrutatorVoteResult{
		Decision:       decision,
		YesVotes:       tally.YesVotes,
		NoVotes:        tally.NoVotes,
		VotesCast:      tally.VotesCast,
		ScrutatorCount: tally.ScrutatorCount,
		MajorityNeeded: tally.MajorityNeeded,
	}
	switch decision {
	case entity.DecisionPending:
		result.Message = fmt.Sprintf("%d of %d votes in favour, %d needed", tally.YesVotes, tally.ScrutatorCount, tally.MajorityNeeded)
		return result, nil
	case entity.DecisionApproved:
		result.Message = "majority reached, the report has been generated"
	case entity.DecisionRejected:
		result.Message = "the majority refused, the meeting continues"
	}

	won, err := c.repo.DecideReportRequest(ctx, round.ID, decision, c.now())
	if err != nil {
		return nil, fmt.Errorf("decide report request: %w", err)
	}
	if !won {
		// a concurrent vote reached the same decision and is carrying it out
		return result, nil
	}
	log := c.log.With(sl.Meeting(meetingID), slog.String("decision", string(decision)))
	log.Info("report request decided")

	if decision == entity.DecisionRejected {
		if err = c.repo.DeleteReportRequest(ctx, round.ID); err != nil {
			log.Error("discard report request", sl.Err(err))
		}
		c.emit(&entity.Event{
			Type:      entity.EventReportRejected,
			MeetingID: meetingID,
			Reason:    entity.ReasonMajority,
			Tally:     &tally,
		})
		return result, nil
	}

	c.emit(&entity.Event{
		Type:      entity.EventReportApproved,
		MeetingID: meetingID,
		Tally:     &tally,
	})
	if err = c.generateReportAndClose(ctx, meeting, round.RequestedBy); err != nil {
		return nil, err
	}
	return result, nil
}

// CancelReportRequest withdraws a pending round.
func (c *Core) CancelReportRequest(ctx context.Context, meetingID, requestedBy string) error {
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if !meeting.IsLeader(requestedBy) {
		return entity.Forbidden("only the organizer may cancel the report request")
	}
	round, err := c.repo.GetReportRequest(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("load report request: %w", err)
	}
	if round == nil {
		return entity.NotFound("no report request to cancel")
	}
	won, err := c.repo.DecideReportRequest(ctx, round.ID, entity.DecisionRejected, c.now())
	if err != nil {
		return fmt.Errorf("cancel report request: %w", err)
	}
	if !won {
		return entity.InvalidState("the report request was already decided")
	}
	if err = c.repo.DeleteReportRequest(ctx, round.ID); err != nil {
		return fmt.Errorf("discard report request: %w", err)
	}
	tally := round.Tally()
	c.emit(&entity.Event{
		Type:      entity.EventReportRejected,
		MeetingID: meetingID,
		Reason:    entity.ReasonCancelled,
		Tally:     &tally,
	})
	return nil
}

// ExpireReportRequests rejects rounds that did not reach a decision in time.
func (c *Core) ExpireReportRequests(ctx context.Context) (int, error) {
	rounds, err := c.repo.ExpiredReportRequests(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("list expired report requests: %w", err)
	}
	count := 0
	for _, round := range rounds {
		if c.expireRound(ctx, round) {
			count++
		}
	}
	return count, nil
}

func (c *Core) expireRound(ctx context.Context, round *entity.ReportRequest) bool {
	log := c.log.With(sl.Meeting(round.MeetingID))
	won, err := c.repo.DecideReportRequest(ctx, round.ID, entity.DecisionRejected, c.now())
	if err != nil {
		log.Error("expire report request", sl.Err(err))
		return false
	}
	if !won {
		return false
	}
	if err = c.repo.DeleteReportRequest(ctx, round.ID); err != nil {
		log.Error("discard expired report request", sl.Err(err))
	}
	tally := round.Tally()
	log.Info("report request expired")
	c.emit(&entity.Event{
		Type:      entity.EventReportRejected,
		MeetingID: round.MeetingID,
		Reason:    entity.ReasonExpired,
		Tally:     &tally,
	})
	return true
}
