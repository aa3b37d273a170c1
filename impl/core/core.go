package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"votesecret/entity"
	"votesecret/internal/report"
	"votesecret/lib/codes"
	"votesecret/lib/sl"
)

// Repository is the storage the core runs on. Lookups return (nil, nil) when
// nothing matches; conditional writes that lose report entity.ErrStaleState and
// unique keys report entity.ErrDuplicateKey.
type Repository interface {
	Ping(ctx context.Context) error

	CreateMeeting(ctx context.Context, meeting *entity.Meeting) error
	GetMeeting(ctx context.Context, id string) (*entity.Meeting, error)
	GetMeetingByCode(ctx context.Context, code string) (*entity.Meeting, error)
	GetMeetingByScrutatorCode(ctx context.Context, code string) (*entity.Meeting, error)
	SetScrutatorCode(ctx context.Context, meetingID, code string) (string, error)
	TouchMeeting(ctx context.Context, meetingID string, at time.Time, organizer bool) error
	SetLeadership(ctx context.Context, meetingID string, present bool, leader string) error
	CloseMeeting(ctx context.Context, meetingID, reason string, at time.Time) error
	MarkReportStored(ctx context.Context, meetingID string, at time.Time) error
	ClosedMeetings(ctx context.Context) ([]*entity.Meeting, error)
	StaleMeetings(ctx context.Context, before time.Time) ([]*entity.Meeting, error)
	AbsentOrganizers(ctx context.Context, before time.Time) ([]*entity.Meeting, error)
	PurgeMeeting(ctx context.Context, meetingID string) error

	CreateParticipant(ctx context.Context, p *entity.Participant) error
	GetParticipant(ctx context.Context, id string) (*entity.Participant, error)
	ListParticipants(ctx context.Context, meetingID string) ([]*entity.Participant, error)
	SetParticipantStatus(ctx context.Context, id string, status entity.ApprovalStatus, at time.Time) (*entity.Participant, error)

	CreateScrutator(ctx context.Context, s *entity.Scrutator) error
	GetScrutator(ctx context.Context, id string) (*entity.Scrutator, error)
	GetScrutatorByName(ctx context.Context, meetingID, nameKey string) (*entity.Scrutator, error)
	ListScrutators(ctx context.Context, meetingID string) ([]*entity.Scrutator, error)
	SetScrutatorStatus(ctx context.Context, id string, status entity.ApprovalStatus, at time.Time) (*entity.Scrutator, error)
	MarkScrutatorJoined(ctx context.Context, id string, at time.Time) (bool, error)

	CreatePoll(ctx context.Context, p *entity.Poll) error
	GetPoll(ctx context.Context, id string) (*entity.Poll, error)
	ListPolls(ctx context.Context, meetingID string) ([]*entity.Poll, error)
	StartPoll(ctx context.Context, id string, at time.Time, closesAt *time.Time) (*entity.Poll, error)
	ClosePoll(ctx context.Context, id string, at time.Time) (*entity.Poll, error)
	RecordVote(ctx context.Context, ballot entity.Ballot, vote *entity.Vote) (*entity.Poll, error)
	HasBallot(ctx context.Context, ballot entity.Ballot) (bool, error)
	DuePolls(ctx context.Context, now time.Time) ([]*entity.Poll, error)

	CreateReportRequest(ctx context.Context, r *entity.ReportRequest) error
	GetReportRequest(ctx context.Context, meetingID string) (*entity.ReportRequest, error)
	AddReportVote(ctx context.Context, requestID string, vote entity.ReportVote) (*entity.ReportRequest, error)
	DecideReportRequest(ctx context.Context, requestID string, decision entity.Decision, at time.Time) (bool, error)
	DeleteReportRequest(ctx context.Context, requestID string) error
	ExpiredReportRequests(ctx context.Context, now time.Time) ([]*entity.ReportRequest, error)

	SaveReport(ctx context.Context, doc *entity.ReportDocument) error
	GetReport(ctx context.Context, meetingID string) (*entity.ReportDocument, error)
	TakeReport(ctx context.Context, meetingID string, now time.Time) (*entity.ReportDocument, error)
	ReportExists(ctx context.Context, meetingID string) (bool, error)
	DeleteExpiredReports(ctx context.Context, now time.Time) (int64, error)
}

// Notifier fans events out to the clients of a meeting. Publish must not block.
type Notifier interface {
	Publish(event *entity.Event)
}

type Renderer interface {
	Render(r *entity.Report) ([]byte, error)
	ContentType() string
}

type AuthService interface {
	ParticipantByToken(ctx context.Context, token string) (*entity.Participant, error)
}

type Config struct {
	CodeLength           int
	ScrutatorPrefix      string
	HeartbeatTTL         time.Duration
	OrganizerAbsentAfter time.Duration
	ReportRequestTTL     time.Duration
	ReportTTL            time.Duration
}

const (
	codeAttempts = 5
	// closed meetings younger than this are left to the request that closed them
	recoveryGrace = 30 * time.Second
)

type Core struct {
	repo     Repository
	notifier Notifier
	renderer Renderer
	auth     AuthService
	codes    codes.Generator
	conf     Config
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(repo Repository, conf Config, log *slog.Logger) *Core {
	if repo == nil {
		panic("repository is nil")
	}
	if conf.HeartbeatTTL <= 0 {
		conf.HeartbeatTTL = 12 * time.Hour
	}
	if conf.OrganizerAbsentAfter <= 0 {
		conf.OrganizerAbsentAfter = 5 * time.Minute
	}
	if conf.ReportRequestTTL <= 0 {
		conf.ReportRequestTTL = 15 * time.Minute
	}
	if conf.ReportTTL <= 0 {
		conf.ReportTTL = time.Hour
	}
	return &Core{
		repo:     repo,
		renderer: report.NewPDF(),
		codes:    codes.NewGenerator(conf.CodeLength, conf.ScrutatorPrefix),
		conf:     conf,
		log:      log.With(sl.Module("core")),
		now:      func() time.Time { return time.Now().UTC() },
		timers:   make(map[string]*time.Timer),
	}
}

func (c *Core) SetNotifier(n Notifier) {
	c.notifier = n
}

func (c *Core) SetRenderer(r Renderer) {
	c.renderer = r
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) AuthenticateByToken(ctx context.Context, token string) (*entity.Participant, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	return c.auth.ParticipantByToken(ctx, token)
}

func (c *Core) Health(ctx context.Context) error {
	return c.repo.Ping(ctx)
}

// Stop cancels pending poll timers; the poll sweep picks them up after a restart.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Core) emit(event *entity.Event) {
	if c.notifier == nil {
		return
	}
	event.At = c.now()
	c.notifier.Publish(event)
}

// activeMeeting loads a meeting that is still open; closed and purged meetings look the same.
func (c *Core) activeMeeting(ctx context.Context, id string) (*entity.Meeting, error) {
	meeting, err := c.repo.GetMeeting(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	if !meeting.IsActive() {
		return nil, entity.NotFound("meeting not found")
	}
	return meeting, nil
}

func approvalStatus(approved bool) entity.ApprovalStatus {
	if approved {
		return entity.StatusApproved
	}
	return entity.StatusRejected
}

func isStale(err error) bool {
	return errors.Is(err, entity.ErrStaleState)
}

func isDuplicate(err error) bool {
	return errors.Is(err, entity.ErrDuplicateKey)
}
