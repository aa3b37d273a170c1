package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"votesecret/entity"
	"votesecret/lib/names"
	"votesecret/lib/sl"
)

func (c *Core) CreatePoll(ctx context.Context, meetingID string, req *entity.CreatePollRequest) (*entity.Poll, error) {
	question := names.Clean(req.Question)
	if question == "" {
		return nil, entity.Validation("question is required")
	}
	var options []entity.Option
	seen := make(map[string]bool)
	for _, text := range req.Options {
		text = names.Clean(text)
		if text == "" {
			continue
		}
		if len([]rune(text)) > entity.MaxOptionLength {
			return nil, entity.Validation("option is longer than %d characters", entity.MaxOptionLength)
		}
		key := names.Key(text)
		if seen[key] {
			return nil, entity.Validation("option %q is listed more than once", text)
		}
		seen[key] = true
		options = append(options, entity.Option{ID: uuid.NewString(), Text: text})
	}
	if len(options) < entity.MinPollOptions {
		return nil, entity.Validation("a poll needs at least %d non-empty options", entity.MinPollOptions)
	}
	if len(options) > entity.MaxPollOptions {
		return nil, entity.Validation("a poll takes at most %d options", entity.MaxPollOptions)
	}
	if req.TimerDuration != nil && (*req.TimerDuration <= 0 || *req.TimerDuration > entity.MaxTimerSeconds) {
		return nil, entity.Validation("timer duration must be between 1 and %d seconds", entity.MaxTimerSeconds)
	}
	if _, err := c.activeMeeting(ctx, meetingID); err != nil {
		return nil, err
	}

	poll := &entity.Poll{
		ID:                  uuid.NewString(),
		MeetingID:           meetingID,
		Question:            question,
		Options:             options,
		Status:              entity.PollDraft,
		TimerDuration:       req.TimerDuration,
		ShowResultsRealTime: req.ShowResultsRealTime,
		CreatedAt:           c.now(),
	}
	if err := c.repo.CreatePoll(ctx, poll); err != nil {
		return nil, fmt.Errorf("save poll: %w", err)
	}
	view := poll.ParticipantView()
	c.emit(&entity.Event{
		Type:      entity.EventPollCreated,
		MeetingID: meetingID,
		PollID:    poll.ID,
		Poll:      &view,
	})
	return poll, nil
}

// meetingPoll loads a poll of an open meeting.
func (c *Core) meetingPoll(ctx context.Context, pollID string) (*entity.Poll, error) {
	poll, err := c.repo.GetPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("load poll: %w", err)
	}
	if poll == nil {
		return nil, entity.NotFound("poll not found")
	}
	if _, err = c.activeMeeting(ctx, poll.MeetingID); err != nil {
		return nil, err
	}
	return poll, nil
}

func (c *Core) StartPoll(ctx context.Context, pollID string) (*entity.Poll, error) {
	poll, err := c.meetingPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status != entity.PollDraft {
		return nil, entity.InvalidState("poll is %s, only a draft poll can be started", poll.Status)
	}
	now := c.now()
	var closesAt *time.Time
	if d := poll.Timer(); d > 0 {
		t := now.Add(d)
		closesAt = &t
	}
	poll, err = c.repo.StartPoll(ctx, pollID, now, closesAt)
	if isStale(err) {
		return nil, entity.InvalidState("poll was already started")
	}
	if err != nil {
		return nil, fmt.Errorf("start poll: %w", err)
	}
	if closesAt != nil {
		c.schedule(poll.ID, closesAt.Sub(now))
	}
	view := poll.ParticipantView()
	c.emit(&entity.Event{
		Type:      entity.EventPollStarted,
		MeetingID: poll.MeetingID,
		PollID:    poll.ID,
		Poll:      &view,
	})
	return poll, nil
}

// ClosePoll freezes the tallies. Closing a closed poll is an error, not a no-op.
func (c *Core) ClosePoll(ctx context.Context, pollID string) (*entity.Poll, error) {
	poll, err := c.meetingPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status != entity.PollActive {
		return nil, entity.InvalidState("poll is %s, only an active poll can be closed", poll.Status)
	}
	poll, err = c.repo.ClosePoll(ctx, pollID, c.now())
	if isStale(err) {
		return nil, entity.InvalidState("poll was already closed")
	}
	if err != nil {
		return nil, fmt.Errorf("close poll: %w", err)
	}
	c.cancelTimer(poll.ID)
	view := poll.ParticipantView()
	c.emit(&entity.Event{
		Type:      entity.EventPollClosed,
		MeetingID: poll.MeetingID,
		PollID:    poll.ID,
		Poll:      &view,
	})
	return poll, nil
}

// autoClose is the timer path: same as a manual close, and quiet when the
// poll was closed by hand or the meeting is gone.
func (c *Core) autoClose(ctx context.Context, pollID string) bool {
	_, err := c.ClosePoll(ctx, pollID)
	if err == nil {
		c.log.With(slog.String("poll", pollID)).Debug("poll closed by timer")
		return true
	}
	if errors.Is(err, entity.ErrInvalidState) || errors.Is(err, entity.ErrNotFound) {
		return false
	}
	c.log.With(slog.String("poll", pollID)).Error("auto close poll", sl.Err(err))
	return false
}

func (c *Core) schedule(pollID string, after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[pollID]; ok {
		t.Stop()
	}
	c.timers[pollID] = time.AfterFunc(after, func() {
		c.mu.Lock()
		delete(c.timers, pollID)
		c.mu.Unlock()
		c.autoClose(context.Background(), pollID)
	})
}

func (c *Core) cancelTimer(pollID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[pollID]; ok {
		t.Stop()
		delete(c.timers, pollID)
	}
}

// ClosePollsDue closes timed polls whose deadline passed without a timer firing,
// which happens after a restart.
func (c *Core) ClosePollsDue(ctx context.Context) (int, error) {
	polls, err := c.repo.DuePolls(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("list due polls: %w", err)
	}
	count := 0
	for _, p := range polls {
		if c.autoClose(ctx, p.ID) {
			count++
		}
	}
	return count, nil
}

// SubmitVote counts one anonymous vote. The ballot proving participation and
// the vote naming the option are stored apart and never linked.
func (c *Core) SubmitVote(ctx context.Context, participantID string, req *entity.VoteRequest) error {
	participant, err := c.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}
	if participant == nil {
		return entity.NotFound("participant not found")
	}
	if !participant.IsApproved() {
		return entity.Forbidden("participant is not approved")
	}
	poll, err := c.meetingPoll(ctx, req.PollID)
	if err != nil {
		return err
	}
	if poll.MeetingID != participant.MeetingID {
		return entity.NotFound("poll not found")
	}
	if poll.Status != entity.PollActive {
		return entity.InvalidState("poll is %s, votes are only accepted while it is active", poll.Status)
	}
	if poll.Option(req.OptionID) == nil {
		return entity.NotFound("option not found in this poll")
	}

	ballot := entity.Ballot{PollID: poll.ID, ParticipantID: participant.ID}
	vote := &entity.Vote{
		ID:       uuid.NewString(),
		PollID:   poll.ID,
		OptionID: req.OptionID,
		VotedAt:  c.now(),
	}
	updated, err := c.repo.RecordVote(ctx, ballot, vote)
	if isDuplicate(err) {
		return entity.AlreadyVoted("you have already voted in this poll")
	}
	if isStale(err) {
		return entity.InvalidState("poll is no longer active")
	}
	if err != nil {
		return fmt.Errorf("record vote: %w", err)
	}

	total := updated.TotalVotes()
	c.emit(&entity.Event{
		Type:       entity.EventVoteSubmitted,
		MeetingID:  poll.MeetingID,
		PollID:     poll.ID,
		TotalVotes: &total,
	})
	return nil
}

func (c *Core) OrganizerPolls(ctx context.Context, meetingID string) ([]entity.PollView, error) {
	polls, err := c.meetingPolls(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	views := make([]entity.PollView, 0, len(polls))
	for _, p := range polls {
		views = append(views, p.OrganizerView())
	}
	return views, nil
}

// ParticipantPolls never shows per-option counts of a poll that is still open.
func (c *Core) ParticipantPolls(ctx context.Context, meetingID string) ([]entity.PollView, error) {
	polls, err := c.meetingPolls(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	views := make([]entity.PollView, 0, len(polls))
	for _, p := range polls {
		views = append(views, p.ParticipantView())
	}
	return views, nil
}

func (c *Core) meetingPolls(ctx context.Context, meetingID string) ([]*entity.Poll, error) {
	if _, err := c.activeMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	polls, err := c.repo.ListPolls(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	return polls, nil
}

func (c *Core) PollResults(ctx context.Context, pollID string) (*entity.PollResults, error) {
	poll, err := c.meetingPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	return poll.Results(), nil
}

// HasVoted tells a participant whether their ballot for a poll is in.
func (c *Core) HasVoted(ctx context.Context, participantID, pollID string) (bool, error) {
	return c.repo.HasBallot(ctx, entity.Ballot{PollID: pollID, ParticipantID: participantID})
}
