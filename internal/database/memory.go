package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"votesecret/entity"
)

// MemoryDB keeps everything in process memory. It enforces the same unique keys
// and conditional writes as the MongoDB store, so the core behaves identically
// on both; used for the local environment and in tests.
type MemoryDB struct {
	mu             sync.Mutex
	meetings       map[string]*entity.Meeting
	participants   map[string]*entity.Participant
	scrutators     map[string]*entity.Scrutator
	polls          map[string]*entity.Poll
	votes          map[string]*entity.Vote
	ballots        map[entity.Ballot]struct{}
	reportRequests map[string]*entity.ReportRequest
	reports        map[string]*entity.ReportDocument
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		meetings:       make(map[string]*entity.Meeting),
		participants:   make(map[string]*entity.Participant),
		scrutators:     make(map[string]*entity.Scrutator),
		polls:          make(map[string]*entity.Poll),
		votes:          make(map[string]*entity.Vote),
		ballots:        make(map[entity.Ballot]struct{}),
		reportRequests: make(map[string]*entity.ReportRequest),
		reports:        make(map[string]*entity.ReportDocument),
	}
}

func (m *MemoryDB) Ping(_ context.Context) error {
	return nil
}

// Counts returns the number of stored documents per collection.
func (m *MemoryDB) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		collectionMeetings:       len(m.meetings),
		collectionParticipants:   len(m.participants),
		collectionScrutators:     len(m.scrutators),
		collectionPolls:          len(m.polls),
		collectionVotes:          len(m.votes),
		collectionBallots:        len(m.ballots),
		collectionReportRequests: len(m.reportRequests),
		collectionReports:        len(m.reports),
	}
}

// meetings

func (m *MemoryDB) CreateMeeting(_ context.Context, meeting *entity.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meetings[meeting.ID]; ok {
		return entity.ErrDuplicateKey
	}
	for _, existing := range m.meetings {
		if existing.MeetingCode == meeting.MeetingCode {
			return entity.ErrDuplicateKey
		}
		if meeting.ScrutatorCode != "" && existing.ScrutatorCode == meeting.ScrutatorCode {
			return entity.ErrDuplicateKey
		}
	}
	m.meetings[meeting.ID] = cloneMeeting(meeting)
	return nil
}

func (m *MemoryDB) GetMeeting(_ context.Context, id string) (*entity.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMeeting(m.meetings[id]), nil
}

func (m *MemoryDB) GetMeetingByCode(_ context.Context, code string) (*entity.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meeting := range m.meetings {
		if meeting.MeetingCode == code {
			return cloneMeeting(meeting), nil
		}
	}
	return nil, nil
}

func (m *MemoryDB) GetMeetingByScrutatorCode(_ context.Context, code string) (*entity.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meeting := range m.meetings {
		if meeting.ScrutatorCode != "" && meeting.ScrutatorCode == code {
			return cloneMeeting(meeting), nil
		}
	}
	return nil, nil
}

func (m *MemoryDB) SetScrutatorCode(_ context.Context, meetingID, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok {
		return "", entity.ErrStaleState
	}
	if meeting.ScrutatorCode != "" {
		return meeting.ScrutatorCode, nil
	}
	for _, existing := range m.meetings {
		if existing.ScrutatorCode == code {
			return "", entity.ErrDuplicateKey
		}
	}
	meeting.ScrutatorCode = code
	return code, nil
}

// TouchMeeting records a heartbeat. An organizer heartbeat also takes leadership back.
func (m *MemoryDB) TouchMeeting(_ context.Context, meetingID string, at time.Time, organizer bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok || meeting.Status != entity.MeetingActive {
		return nil
	}
	meeting.LastHeartbeat = at
	if organizer {
		meeting.OrganizerPresent = true
		meeting.LeadershipTransferredTo = ""
	}
	return nil
}

func (m *MemoryDB) SetLeadership(_ context.Context, meetingID string, present bool, leader string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok || meeting.Status != entity.MeetingActive {
		return entity.ErrStaleState
	}
	meeting.OrganizerPresent = present
	meeting.LeadershipTransferredTo = leader
	return nil
}

func (m *MemoryDB) CloseMeeting(_ context.Context, meetingID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok || meeting.Status != entity.MeetingActive {
		return entity.ErrStaleState
	}
	meeting.Status = entity.MeetingClosed
	meeting.CloseReason = reason
	closedAt := at
	meeting.ClosedAt = &closedAt
	return nil
}

func (m *MemoryDB) MarkReportStored(_ context.Context, meetingID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok || meeting.Status != entity.MeetingClosed {
		return entity.ErrStaleState
	}
	storedAt := at
	meeting.ReportStoredAt = &storedAt
	return nil
}

func (m *MemoryDB) ClosedMeetings(_ context.Context) ([]*entity.Meeting, error) {
	return m.filterMeetings(func(meeting *entity.Meeting) bool {
		return meeting.Status == entity.MeetingClosed
	}), nil
}

func (m *MemoryDB) StaleMeetings(_ context.Context, before time.Time) ([]*entity.Meeting, error) {
	return m.filterMeetings(func(meeting *entity.Meeting) bool {
		return meeting.Status == entity.MeetingActive && meeting.LastHeartbeat.Before(before)
	}), nil
}

func (m *MemoryDB) AbsentOrganizers(_ context.Context, before time.Time) ([]*entity.Meeting, error) {
	return m.filterMeetings(func(meeting *entity.Meeting) bool {
		return meeting.Status == entity.MeetingActive && meeting.OrganizerPresent && meeting.LastHeartbeat.Before(before)
	}), nil
}

func (m *MemoryDB) filterMeetings(match func(*entity.Meeting) bool) []*entity.Meeting {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.Meeting
	for _, meeting := range m.meetings {
		if match(meeting) {
			result = append(result, cloneMeeting(meeting))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// PurgeMeeting removes a meeting with everything it owns under one lock,
// so no reader ever observes a partial purge.
func (m *MemoryDB) PurgeMeeting(_ context.Context, meetingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.participants {
		if p.MeetingID == meetingID {
			delete(m.participants, id)
		}
	}
	for id, s := range m.scrutators {
		if s.MeetingID == meetingID {
			delete(m.scrutators, id)
		}
	}
	for id, poll := range m.polls {
		if poll.MeetingID != meetingID {
			continue
		}
		for vid, v := range m.votes {
			if v.PollID == id {
				delete(m.votes, vid)
			}
		}
		for b := range m.ballots {
			if b.PollID == id {
				delete(m.ballots, b)
			}
		}
		delete(m.polls, id)
	}
	for id, r := range m.reportRequests {
		if r.MeetingID == meetingID {
			delete(m.reportRequests, id)
		}
	}
	delete(m.meetings, meetingID)
	return nil
}

// participants

func (m *MemoryDB) CreateParticipant(_ context.Context, p *entity.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[p.ID]; ok {
		return entity.ErrDuplicateKey
	}
	for _, existing := range m.participants {
		if existing.MeetingID == p.MeetingID && existing.NameKey == p.NameKey {
			return entity.ErrDuplicateKey
		}
	}
	m.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (m *MemoryDB) GetParticipant(_ context.Context, id string) (*entity.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneParticipant(m.participants[id]), nil
}

func (m *MemoryDB) GetParticipantByToken(_ context.Context, tokenHash string) (*entity.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tokenHash == "" {
		return nil, nil
	}
	for _, p := range m.participants {
		if p.TokenHash == tokenHash {
			return cloneParticipant(p), nil
		}
	}
	return nil, nil
}

func (m *MemoryDB) ListParticipants(_ context.Context, meetingID string) ([]*entity.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.Participant
	for _, p := range m.participants {
		if p.MeetingID == meetingID {
			result = append(result, cloneParticipant(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

func (m *MemoryDB) SetParticipantStatus(_ context.Context, id string, status entity.ApprovalStatus, at time.Time) (*entity.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok || p.Status != entity.StatusPending {
		return nil, entity.ErrStaleState
	}
	p.Status = status
	decided := at
	p.DecidedAt = &decided
	return cloneParticipant(p), nil
}

// scrutators

func (m *MemoryDB) CreateScrutator(_ context.Context, s *entity.Scrutator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scrutators[s.ID]; ok {
		return entity.ErrDuplicateKey
	}
	for _, existing := range m.scrutators {
		if existing.MeetingID == s.MeetingID && existing.NameKey == s.NameKey {
			return entity.ErrDuplicateKey
		}
	}
	m.scrutators[s.ID] = cloneScrutator(s)
	return nil
}

func (m *MemoryDB) GetScrutator(_ context.Context, id string) (*entity.Scrutator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneScrutator(m.scrutators[id]), nil
}

func (m *MemoryDB) GetScrutatorByName(_ context.Context, meetingID, nameKey string) (*entity.Scrutator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scrutators {
		if s.MeetingID == meetingID && s.NameKey == nameKey {
			return cloneScrutator(s), nil
		}
	}
	return nil, nil
}

func (m *MemoryDB) ListScrutators(_ context.Context, meetingID string) ([]*entity.Scrutator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.Scrutator
	for _, s := range m.scrutators {
		if s.MeetingID == meetingID {
			result = append(result, cloneScrutator(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AddedAt.Before(result[j].AddedAt) })
	return result, nil
}

func (m *MemoryDB) SetScrutatorStatus(_ context.Context, id string, status entity.ApprovalStatus, at time.Time) (*entity.Scrutator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scrutators[id]
	if !ok || s.Status != entity.StatusPending {
		return nil, entity.ErrStaleState
	}
	s.Status = status
	if status == entity.StatusApproved {
		approved := at
		s.ApprovedAt = &approved
	}
	return cloneScrutator(s), nil
}

func (m *MemoryDB) MarkScrutatorJoined(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scrutators[id]
	if !ok || s.JoinedAt != nil {
		return false, nil
	}
	joined := at
	s.JoinedAt = &joined
	return true, nil
}

// polls and votes

func (m *MemoryDB) CreatePoll(_ context.Context, p *entity.Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[p.ID]; ok {
		return entity.ErrDuplicateKey
	}
	m.polls[p.ID] = clonePoll(p)
	return nil
}

func (m *MemoryDB) GetPoll(_ context.Context, id string) (*entity.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clonePoll(m.polls[id]), nil
}

func (m *MemoryDB) ListPolls(_ context.Context, meetingID string) ([]*entity.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.Poll
	for _, p := range m.polls {
		if p.MeetingID == meetingID {
			result = append(result, clonePoll(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryDB) StartPoll(_ context.Context, id string, at time.Time, closesAt *time.Time) (*entity.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok || p.Status != entity.PollDraft {
		return nil, entity.ErrStaleState
	}
	p.Status = entity.PollActive
	started := at
	p.TimerStartedAt = &started
	if closesAt != nil {
		c := *closesAt
		p.ClosesAt = &c
	}
	return clonePoll(p), nil
}

func (m *MemoryDB) ClosePoll(_ context.Context, id string, at time.Time) (*entity.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok || p.Status != entity.PollActive {
		return nil, entity.ErrStaleState
	}
	p.Status = entity.PollClosed
	closed := at
	p.ClosedAt = &closed
	return clonePoll(p), nil
}

// RecordVote checks the ballot, counts the vote and stores it in one critical section.
func (m *MemoryDB) RecordVote(_ context.Context, ballot entity.Ballot, vote *entity.Vote) (*entity.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ballots[ballot]; ok {
		return nil, entity.ErrDuplicateKey
	}
	p, ok := m.polls[vote.PollID]
	if !ok || p.Status != entity.PollActive {
		return nil, entity.ErrStaleState
	}
	option := p.Option(vote.OptionID)
	if option == nil {
		return nil, entity.ErrStaleState
	}
	option.Votes++
	m.ballots[ballot] = struct{}{}
	v := *vote
	m.votes[v.ID] = &v
	return clonePoll(p), nil
}

func (m *MemoryDB) HasBallot(_ context.Context, ballot entity.Ballot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ballots[ballot]
	return ok, nil
}

func (m *MemoryDB) DuePolls(_ context.Context, now time.Time) ([]*entity.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.Poll
	for _, p := range m.polls {
		if p.Status == entity.PollActive && p.ClosesAt != nil && !now.Before(*p.ClosesAt) {
			result = append(result, clonePoll(p))
		}
	}
	return result, nil
}

// report requests

func (m *MemoryDB) CreateReportRequest(_ context.Context, r *entity.ReportRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reportRequests {
		if existing.MeetingID == r.MeetingID {
			return entity.ErrDuplicateKey
		}
	}
	m.reportRequests[r.ID] = cloneReportRequest(r)
	return nil
}

func (m *MemoryDB) GetReportRequest(_ context.Context, meetingID string) (*entity.ReportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reportRequests {
		if r.MeetingID == meetingID {
			return cloneReportRequest(r), nil
		}
	}
	return nil, nil
}

func (m *MemoryDB) AddReportVote(_ context.Context, requestID string, vote entity.ReportVote) (*entity.ReportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reportRequests[requestID]
	if !ok || r.Decision != entity.DecisionPending {
		return nil, entity.ErrStaleState
	}
	if r.HasVoted(vote.NameKey) {
		return nil, entity.ErrDuplicateKey
	}
	r.Votes = append(r.Votes, vote)
	return cloneReportRequest(r), nil
}

func (m *MemoryDB) DecideReportRequest(_ context.Context, requestID string, decision entity.Decision, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reportRequests[requestID]
	if !ok || r.Decision != entity.DecisionPending {
		return false, nil
	}
	r.Decision = decision
	decided := at
	r.DecidedAt = &decided
	return true, nil
}

func (m *MemoryDB) DeleteReportRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reportRequests, requestID)
	return nil
}

func (m *MemoryDB) ExpiredReportRequests(_ context.Context, now time.Time) ([]*entity.ReportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.ReportRequest
	for _, r := range m.reportRequests {
		if r.Expired(now) {
			result = append(result, cloneReportRequest(r))
		}
	}
	return result, nil
}

// reports

func (m *MemoryDB) SaveReport(_ context.Context, doc *entity.ReportDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *doc
	d.Recipients = append([]string(nil), doc.Recipients...)
	m.reports[doc.MeetingID] = &d
	return nil
}

func (m *MemoryDB) GetReport(_ context.Context, meetingID string) (*entity.ReportDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.reports[meetingID]
	if !ok {
		return nil, nil
	}
	d := *doc
	return &d, nil
}

func (m *MemoryDB) TakeReport(_ context.Context, meetingID string, now time.Time) (*entity.ReportDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.reports[meetingID]
	if !ok {
		return nil, nil
	}
	delete(m.reports, meetingID)
	if !now.Before(doc.ExpiresAt) {
		return nil, nil
	}
	return doc, nil
}

func (m *MemoryDB) ReportExists(_ context.Context, meetingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.reports[meetingID]
	return ok, nil
}

func (m *MemoryDB) DeleteExpiredReports(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, doc := range m.reports {
		if !now.Before(doc.ExpiresAt) {
			delete(m.reports, id)
			n++
		}
	}
	return n, nil
}

func cloneMeeting(m *entity.Meeting) *entity.Meeting {
	if m == nil {
		return nil
	}
	c := *m
	if m.ClosedAt != nil {
		t := *m.ClosedAt
		c.ClosedAt = &t
	}
	if m.ReportStoredAt != nil {
		t := *m.ReportStoredAt
		c.ReportStoredAt = &t
	}
	return &c
}

func cloneParticipant(p *entity.Participant) *entity.Participant {
	if p == nil {
		return nil
	}
	c := *p
	if p.DecidedAt != nil {
		t := *p.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

func cloneScrutator(s *entity.Scrutator) *entity.Scrutator {
	if s == nil {
		return nil
	}
	c := *s
	if s.JoinedAt != nil {
		t := *s.JoinedAt
		c.JoinedAt = &t
	}
	if s.ApprovedAt != nil {
		t := *s.ApprovedAt
		c.ApprovedAt = &t
	}
	return &c
}

func clonePoll(p *entity.Poll) *entity.Poll {
	if p == nil {
		return nil
	}
	c := *p
	c.Options = make([]entity.Option, len(p.Options))
	copy(c.Options, p.Options)
	if p.TimerDuration != nil {
		d := *p.TimerDuration
		c.TimerDuration = &d
	}
	return &c
}

func cloneReportRequest(r *entity.ReportRequest) *entity.ReportRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Eligible = append([]string(nil), r.Eligible...)
	c.Votes = append([]entity.ReportVote(nil), r.Votes...)
	return &c
}
