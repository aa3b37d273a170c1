package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"votesecret/entity"
	"votesecret/internal/database"
)

type recorder struct {
	mu     sync.Mutex
	events []*entity.Event
}

func (r *recorder) Publish(e *entity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) last(eventType string) *entity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i]
		}
	}
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type fakeRenderer struct{}

func (fakeRenderer) Render(r *entity.Report) ([]byte, error) {
	return []byte("report " + r.MeetingCode), nil
}

func (fakeRenderer) ContentType() string {
	return "application/pdf"
}

var errInjected = errors.New("injected failure")

// flakyRepo makes selected writes fail a given number of times.
type flakyRepo struct {
	*database.MemoryDB
	purgeFailures  atomic.Int32
	deleteFailures atomic.Int32
}

func (r *flakyRepo) PurgeMeeting(ctx context.Context, meetingID string) error {
	if r.purgeFailures.Add(-1) >= 0 {
		return errInjected
	}
	return r.MemoryDB.PurgeMeeting(ctx, meetingID)
}

func (r *flakyRepo) DeleteReportRequest(ctx context.Context, requestID string) error {
	if r.deleteFailures.Add(-1) >= 0 {
		return errInjected
	}
	return r.MemoryDB.DeleteReportRequest(ctx, requestID)
}

type fixture struct {
	core   *Core
	db     *database.MemoryDB
	events *recorder
	clock  *fakeClock
	ctx    context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewMemoryDB()
	return newFixtureOn(t, db, db)
}

// newFixtureOn runs the core on repo; db is the store behind it, used for assertions.
func newFixtureOn(t *testing.T, db *database.MemoryDB, repo Repository) *fixture {
	t.Helper()
	c := New(repo, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := &recorder{}
	clk := &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	c.SetNotifier(rec)
	c.SetRenderer(fakeRenderer{})
	c.now = clk.Now
	t.Cleanup(c.Stop)
	return &fixture{core: c, db: db, events: rec, clock: clk, ctx: context.Background()}
}

func (f *fixture) meeting(t *testing.T) *entity.Meeting {
	t.Helper()
	m, err := f.core.CreateMeeting(f.ctx, &entity.CreateMeetingRequest{Title: "Annual assembly", OrganizerName: "Olga"})
	if err != nil {
		t.Fatalf("CreateMeeting() error = %v", err)
	}
	return m
}

func (f *fixture) join(t *testing.T, m *entity.Meeting, name string) *entity.JoinResult {
	t.Helper()
	res, err := f.core.RequestJoin(f.ctx, &entity.JoinRequest{Name: name, MeetingCode: m.MeetingCode})
	if err != nil {
		t.Fatalf("RequestJoin(%q) error = %v", name, err)
	}
	return res
}

func (f *fixture) participant(t *testing.T, m *entity.Meeting, name string) *entity.Participant {
	t.Helper()
	res := f.join(t, m, name)
	p, err := f.core.ApproveParticipant(f.ctx, res.Participant.ID, true)
	if err != nil {
		t.Fatalf("ApproveParticipant(%q) error = %v", name, err)
	}
	return p
}

func (f *fixture) poll(t *testing.T, m *entity.Meeting, options ...string) *entity.Poll {
	t.Helper()
	p, err := f.core.CreatePoll(f.ctx, m.ID, &entity.CreatePollRequest{Question: "Approve?", Options: options})
	if err != nil {
		t.Fatalf("CreatePoll() error = %v", err)
	}
	return p
}

func (f *fixture) activePoll(t *testing.T, m *entity.Meeting, options ...string) *entity.Poll {
	t.Helper()
	p := f.poll(t, m, options...)
	p, err := f.core.StartPoll(f.ctx, p.ID)
	if err != nil {
		t.Fatalf("StartPoll() error = %v", err)
	}
	return p
}

func (f *fixture) scrutators(t *testing.T, m *entity.Meeting, list ...string) []*entity.Scrutator {
	t.Helper()
	batch, err := f.core.RegisterScrutators(f.ctx, m.ID, list)
	if err != nil {
		t.Fatalf("RegisterScrutators() error = %v", err)
	}
	var approved []*entity.Scrutator
	for _, s := range batch.Added {
		f.clock.Advance(time.Second)
		a, err := f.core.ApproveScrutator(f.ctx, s.ID, true)
		if err != nil {
			t.Fatalf("ApproveScrutator(%q) error = %v", s.Name, err)
		}
		approved = append(approved, a)
	}
	return approved
}

func (f *fixture) vote(t *testing.T, p *entity.Participant, poll *entity.Poll, optionText string) {
	t.Helper()
	if err := f.core.SubmitVote(f.ctx, p.ID, &entity.VoteRequest{PollID: poll.ID, OptionID: optionID(t, poll, optionText)}); err != nil {
		t.Fatalf("SubmitVote(%s, %s) error = %v", p.Name, optionText, err)
	}
}

func optionID(t *testing.T, poll *entity.Poll, text string) string {
	t.Helper()
	for _, o := range poll.Options {
		if o.Text == text {
			return o.ID
		}
	}
	t.Fatalf("poll has no option %q", text)
	return ""
}

func assertKind(t *testing.T, err error, want *entity.Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v (kind %s), want kind %s", err, entity.KindOf(err), want.Kind)
	}
}

func yes() *bool {
	v := true
	return &v
}

func no() *bool {
	v := false
	return &v
}
