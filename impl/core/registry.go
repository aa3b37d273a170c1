package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"votesecret/entity"
	"votesecret/impl/auth"
	"votesecret/lib/codes"
	"votesecret/lib/names"
	"votesecret/lib/sl"
)

const accessTypeScrutator = "scrutator"

func cleanName(name string) (string, error) {
	name = names.Clean(name)
	if name == "" {
		return "", entity.Validation("name is required")
	}
	if len([]rune(name)) > entity.MaxNameLength {
		return "", entity.Validation("name is longer than %d characters", entity.MaxNameLength)
	}
	return name, nil
}

// RequestJoin registers a participant as pending. The returned token is the
// participant's only credential and is not stored in clear.
func (c *Core) RequestJoin(ctx context.Context, req *entity.JoinRequest) (*entity.JoinResult, error) {
	name, err := cleanName(req.Name)
	if err != nil {
		return nil, err
	}
	code := codes.Normalize(req.MeetingCode)
	if c.codes.Classify(code) == codes.KindScrutator {
		return nil, entity.Validation("this is a scrutator access code, use the scrutator join")
	}
	meeting, err := c.repo.GetMeetingByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	if !meeting.IsActive() {
		return nil, entity.NotFound("meeting not found")
	}

	token, err := auth.NewToken()
	if err != nil {
		return nil, err
	}
	participant := &entity.Participant{
		ID:        uuid.NewString(),
		MeetingID: meeting.ID,
		Name:      name,
		NameKey:   names.Key(name),
		Status:    entity.StatusPending,
		JoinedAt:  c.now(),
		TokenHash: auth.HashToken(token),
	}
	err = c.repo.CreateParticipant(ctx, participant)
	if isDuplicate(err) {
		return nil, entity.DuplicateName("the name %q is already taken in this meeting", name)
	}
	if err != nil {
		return nil, fmt.Errorf("save participant: %w", err)
	}

	c.log.With(sl.Meeting(meeting.ID), slog.String("participant", participant.ID)).Debug("join requested")
	c.emit(&entity.Event{
		Type:        entity.EventParticipantJoined,
		MeetingID:   meeting.ID,
		Participant: participant,
	})
	return &entity.JoinResult{Participant: participant, Token: token}, nil
}

// ApproveParticipant decides a pending participant. Deciding twice is an error,
// even with the same answer.
func (c *Core) ApproveParticipant(ctx context.Context, participantID string, approved bool) (*entity.Participant, error) {
	current, err := c.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("load participant: %w", err)
	}
	if current == nil {
		return nil, entity.NotFound("participant not found")
	}
	if _, err = c.activeMeeting(ctx, current.MeetingID); err != nil {
		return nil, err
	}
	if current.Status != entity.StatusPending {
		return nil, entity.InvalidState("participant is already %s", current.Status)
	}
	participant, err := c.repo.SetParticipantStatus(ctx, participantID, approvalStatus(approved), c.now())
	if isStale(err) {
		return nil, entity.InvalidState("participant was already decided")
	}
	if err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}
	c.emit(&entity.Event{
		Type:        entity.EventParticipantApproved,
		MeetingID:   participant.MeetingID,
		Participant: participant,
		Status:      participant.Status,
	})
	return participant, nil
}

func (c *Core) ParticipantStatus(ctx context.Context, participantID string) (*entity.ParticipantStatus, error) {
	participant, err := c.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("load participant: %w", err)
	}
	if participant == nil {
		return nil, entity.NotFound("participant not found")
	}
	if _, err = c.activeMeeting(ctx, participant.MeetingID); err != nil {
		return nil, err
	}
	return &entity.ParticipantStatus{
		ID:        participant.ID,
		Name:      participant.Name,
		Status:    participant.Status,
		MeetingID: participant.MeetingID,
	}, nil
}

// RegisterScrutators adds candidate names. A name that collides, with an existing
// scrutator or an earlier name in the same batch, is reported back and the rest
// of the batch still goes through. One access code serves the whole meeting.
func (c *Core) RegisterScrutators(ctx context.Context, meetingID string, list []string) (*entity.ScrutatorBatch, error) {
	if len(list) == 0 {
		return nil, entity.Validation("at least one scrutator name is required")
	}
	cleaned := make([]string, 0, len(list))
	for _, n := range list {
		name, err := cleanName(n)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, name)
	}
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	code, err := c.scrutatorCode(ctx, meeting)
	if err != nil {
		return nil, err
	}

	batch := &entity.ScrutatorBatch{ScrutatorCode: code}
	seen := make(map[string]bool, len(cleaned))
	for _, name := range cleaned {
		key := names.Key(name)
		if seen[key] {
			batch.Rejected = append(batch.Rejected, entity.RejectedName{
				Name:    name,
				Kind:    entity.KindDuplicateName,
				Message: "listed more than once",
			})
			continue
		}
		seen[key] = true
		scrutator := &entity.Scrutator{
			ID:        uuid.NewString(),
			MeetingID: meetingID,
			Name:      name,
			NameKey:   key,
			Status:    entity.StatusPending,
			AddedAt:   c.now(),
		}
		err = c.repo.CreateScrutator(ctx, scrutator)
		if isDuplicate(err) {
			batch.Rejected = append(batch.Rejected, entity.RejectedName{
				Name:    name,
				Kind:    entity.KindDuplicateName,
				Message: "already registered as a scrutator",
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save scrutator: %w", err)
		}
		batch.Added = append(batch.Added, scrutator)
	}

	batch.Scrutators, err = c.repo.ListScrutators(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list scrutators: %w", err)
	}
	c.log.With(
		sl.Meeting(meetingID),
		slog.Int("added", len(batch.Added)),
		slog.Int("rejected", len(batch.Rejected)),
	).Info("scrutators registered")
	return batch, nil
}

func (c *Core) scrutatorCode(ctx context.Context, meeting *entity.Meeting) (string, error) {
	if meeting.ScrutatorCode != "" {
		return meeting.ScrutatorCode, nil
	}
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := c.codes.Scrutator()
		if err != nil {
			return "", err
		}
		code, err = c.repo.SetScrutatorCode(ctx, meeting.ID, code)
		if isDuplicate(err) {
			continue
		}
		if isStale(err) {
			return "", entity.NotFound("meeting not found")
		}
		if err != nil {
			return "", fmt.Errorf("save scrutator code: %w", err)
		}
		return code, nil
	}
	return "", fmt.Errorf("no free scrutator code after %d attempts", codeAttempts)
}

func (c *Core) Scrutators(ctx context.Context, meetingID string) (*entity.ScrutatorList, error) {
	meeting, err := c.activeMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	list, err := c.repo.ListScrutators(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list scrutators: %w", err)
	}
	return &entity.ScrutatorList{ScrutatorCode: meeting.ScrutatorCode, Scrutators: list}, nil
}

// JoinAsScrutator lets a registered name in with the shared access code.
// Reconnecting returns the current status without a new join request.
func (c *Core) JoinAsScrutator(ctx context.Context, req *entity.ScrutatorJoinRequest) (*entity.ScrutatorJoinResult, error) {
	name, err := cleanName(req.Name)
	if err != nil {
		return nil, err
	}
	code := codes.Normalize(req.ScrutatorCode)
	if c.codes.Classify(code) != codes.KindScrutator {
		return nil, entity.NotFound("invalid scrutator code")
	}
	meeting, err := c.repo.GetMeetingByScrutatorCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	if !meeting.IsActive() {
		return nil, entity.NotFound("invalid scrutator code")
	}
	scrutator, err := c.repo.GetScrutatorByName(ctx, meeting.ID, names.Key(name))
	if err != nil {
		return nil, fmt.Errorf("load scrutator: %w", err)
	}
	if scrutator == nil {
		return nil, entity.Forbidden("%q is not on the scrutator list of this meeting", name)
	}

	first, err := c.repo.MarkScrutatorJoined(ctx, scrutator.ID, c.now())
	if err != nil {
		return nil, fmt.Errorf("mark scrutator joined: %w", err)
	}
	if first && scrutator.Status == entity.StatusPending {
		c.emit(&entity.Event{
			Type:          entity.EventScrutatorJoinRequest,
			MeetingID:     meeting.ID,
			Scrutator:     scrutator,
			ScrutatorName: scrutator.Name,
		})
	}

	result := &entity.ScrutatorJoinResult{
		Status:     scrutator.Status,
		Scrutator:  scrutator,
		AccessType: accessTypeScrutator,
	}
	if scrutator.IsApproved() {
		result.Meeting = meeting.Public()
	}
	return result, nil
}

func (c *Core) ApproveScrutator(ctx context.Context, scrutatorID string, approved bool) (*entity.Scrutator, error) {
	current, err := c.repo.GetScrutator(ctx, scrutatorID)
	if err != nil {
		return nil, fmt.Errorf("load scrutator: %w", err)
	}
	if current == nil {
		return nil, entity.NotFound("scrutator not found")
	}
	if _, err = c.activeMeeting(ctx, current.MeetingID); err != nil {
		return nil, err
	}
	if current.Status != entity.StatusPending {
		return nil, entity.InvalidState("scrutator is already %s", current.Status)
	}
	scrutator, err := c.repo.SetScrutatorStatus(ctx, scrutatorID, approvalStatus(approved), c.now())
	if isStale(err) {
		return nil, entity.InvalidState("scrutator was already decided")
	}
	if err != nil {
		return nil, fmt.Errorf("update scrutator: %w", err)
	}
	c.emit(&entity.Event{
		Type:          entity.EventScrutatorApproved,
		MeetingID:     scrutator.MeetingID,
		Scrutator:     scrutator,
		ScrutatorName: scrutator.Name,
		Status:        scrutator.Status,
	})
	return scrutator, nil
}

func (c *Core) approvedScrutators(ctx context.Context, meetingID string) ([]*entity.Scrutator, error) {
	list, err := c.repo.ListScrutators(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list scrutators: %w", err)
	}
	approved := list[:0]
	for _, s := range list {
		if s.IsApproved() {
			approved = append(approved, s)
		}
	}
	return approved, nil
}
