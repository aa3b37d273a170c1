package core

import (
	"maps"
	"strings"
	"testing"
	"time"

	"votesecret/entity"
	"votesecret/internal/database"
)

func TestCreateMeeting(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)

	if len(m.MeetingCode) != 8 || strings.HasPrefix(m.MeetingCode, "SC") {
		t.Errorf("meeting code %q", m.MeetingCode)
	}
	if !m.OrganizerPresent || m.Status != entity.MeetingActive {
		t.Errorf("new meeting = %+v", m)
	}

	got, err := f.core.MeetingByCode(f.ctx, " "+strings.ToLower(m.MeetingCode)+" ")
	if err != nil {
		t.Fatalf("MeetingByCode() error = %v", err)
	}
	if got.ID != m.ID {
		t.Errorf("MeetingByCode() = %s, want %s", got.ID, m.ID)
	}

	_, err = f.core.MeetingByCode(f.ctx, "ZZZZZZZZ")
	assertKind(t, err, entity.ErrNotFound)
}

func TestCreateMeetingValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  entity.CreateMeetingRequest
	}{
		{name: "empty title", req: entity.CreateMeetingRequest{Title: "  ", OrganizerName: "Olga"}},
		{name: "empty organizer", req: entity.CreateMeetingRequest{Title: "T", OrganizerName: ""}},
		{name: "long title", req: entity.CreateMeetingRequest{Title: strings.Repeat("x", 201), OrganizerName: "Olga"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.core.CreateMeeting(f.ctx, &tt.req)
			assertKind(t, err, entity.ErrValidation)
		})
	}
}

func TestMeetingByCodePublic(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	f.scrutators(t, m, "Sam")

	got, err := f.core.MeetingByCode(f.ctx, m.MeetingCode)
	if err != nil {
		t.Fatal(err)
	}
	if got.ScrutatorCode != "" {
		t.Error("public meeting must not carry the scrutator code")
	}
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)

	f.clock.Advance(time.Minute)
	if err := f.core.Heartbeat(f.ctx, m.ID, "olga"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	stored, _ := f.db.GetMeeting(f.ctx, m.ID)
	if !stored.LastHeartbeat.Equal(f.clock.Now()) {
		t.Errorf("last heartbeat = %v, want %v", stored.LastHeartbeat, f.clock.Now())
	}

	assertKind(t, f.core.Heartbeat(f.ctx, m.ID, "Mallory"), entity.ErrForbidden)

	if err := f.core.Heartbeat(f.ctx, "gone", "Olga"); err != nil {
		t.Errorf("heartbeat on a missing meeting = %v, want nil", err)
	}
}

func TestDownloadReportPurgesEverything(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	ana := f.participant(t, m, "Ana")
	pending := f.join(t, m, "Ben")
	poll := f.activePoll(t, m, "Yes", "No")
	f.vote(t, ana, poll, "Yes")

	doc, err := f.core.DownloadReport(f.ctx, m.ID, "Olga")
	if err != nil {
		t.Fatalf("DownloadReport() error = %v", err)
	}
	if doc.ContentType != "application/pdf" || len(doc.Content) == 0 {
		t.Errorf("report document = %+v", doc)
	}

	for name, n := range f.db.Counts() {
		if n != 0 {
			t.Errorf("%s still holds %d documents", name, n)
		}
	}
	_, err = f.core.MeetingByCode(f.ctx, m.MeetingCode)
	assertKind(t, err, entity.ErrNotFound)
	_, err = f.core.ParticipantStatus(f.ctx, ana.ID)
	assertKind(t, err, entity.ErrNotFound)
	_, err = f.core.ParticipantStatus(f.ctx, pending.Participant.ID)
	assertKind(t, err, entity.ErrNotFound)
	_, err = f.core.DownloadReport(f.ctx, m.ID, "Olga")
	assertKind(t, err, entity.ErrNotFound)

	if e := f.events.last(entity.EventMeetingClosed); e == nil || e.Reason != entity.ReasonReport {
		t.Errorf("meeting_closed event = %+v", e)
	}
}

func TestReportRoundTrip(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	voters := []*entity.Participant{
		f.participant(t, m, "Ana"),
		f.participant(t, m, "Ben"),
		f.participant(t, m, "Cem"),
	}
	poll := f.activePoll(t, m, "Yes", "No")
	f.vote(t, voters[0], poll, "Yes")
	f.vote(t, voters[1], poll, "Yes")
	f.vote(t, voters[2], poll, "No")
	if _, err := f.core.ClosePoll(f.ctx, poll.ID); err != nil {
		t.Fatal(err)
	}

	doc, err := f.core.DownloadReport(f.ctx, m.ID, "Olga")
	if err != nil {
		t.Fatal(err)
	}
	got := doc.Data.Polls[0]
	if got.Options[0].Text != "Yes" || got.Options[0].Votes != 2 {
		t.Errorf("Yes = %+v", got.Options[0])
	}
	if got.Options[1].Text != "No" || got.Options[1].Votes != 1 {
		t.Errorf("No = %+v", got.Options[1])
	}
	if got.Winner != "Yes" {
		t.Errorf("winner = %q, want Yes", got.Winner)
	}
	if len(doc.Data.Participants) != 3 {
		t.Errorf("participants in report = %d", len(doc.Data.Participants))
	}
}

func TestDownloadReportNeedsScrutators(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	f.scrutators(t, m, "Sam")

	_, err := f.core.DownloadReport(f.ctx, m.ID, "Olga")
	assertKind(t, err, entity.ErrForbidden)
	if _, err = f.core.MeetingByCode(f.ctx, m.MeetingCode); err != nil {
		t.Errorf("meeting must survive a refused download: %v", err)
	}
}

func TestDownloadReportOnlyForLeader(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	ana := f.participant(t, m, "Ana")
	poll := f.activePoll(t, m, "Yes", "No")
	f.vote(t, ana, poll, "Yes")
	before := f.db.Counts()

	_, err := f.core.DownloadReport(f.ctx, m.ID, "Mallory")
	assertKind(t, err, entity.ErrForbidden)
	_, err = f.core.DownloadReport(f.ctx, m.ID, "Ana")
	assertKind(t, err, entity.ErrForbidden)
	_, err = f.core.DownloadReport(f.ctx, m.ID, "  ")
	assertKind(t, err, entity.ErrValidation)

	if _, err = f.core.MeetingByCode(f.ctx, m.MeetingCode); err != nil {
		t.Fatalf("meeting must survive a refused download: %v", err)
	}
	if after := f.db.Counts(); !maps.Equal(after, before) {
		t.Errorf("counts = %v, want %v", after, before)
	}
	if f.events.count(entity.EventMeetingClosed) != 0 {
		t.Error("refused download closed the meeting")
	}
}

func TestStoredReportOnlyForRecipients(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	f.scrutators(t, m, "Sam", "Tia")
	if _, err := f.core.RequestReportGeneration(f.ctx, m.ID, "Olga"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Sam", "Tia"} {
		if _, err := f.core.CastScrutatorVote(f.ctx, m.ID, &entity.ScrutatorVoteRequest{ScrutatorName: name, Approved: yes()}); err != nil {
			t.Fatal(err)
		}
	}

	_, err := f.core.DownloadReport(f.ctx, m.ID, "Sam")
	assertKind(t, err, entity.ErrForbidden)
	_, err = f.core.DownloadReport(f.ctx, m.ID, "Mallory")
	assertKind(t, err, entity.ErrForbidden)
	if f.db.Counts()["reports"] != 1 {
		t.Fatal("refused download removed the report")
	}
	if _, err = f.core.DownloadReport(f.ctx, m.ID, "OLGA"); err != nil {
		t.Fatalf("DownloadReport() by organizer = %v", err)
	}
}

func TestCleanupAbandoned(t *testing.T) {
	f := newFixture(t)
	old := f.meeting(t)
	f.participant(t, old, "Ana")
	f.clock.Advance(11 * time.Hour)
	fresh := f.meeting(t)

	f.clock.Advance(2 * time.Hour)
	n, err := f.core.CleanupAbandoned(f.ctx)
	if err != nil || n != 1 {
		t.Fatalf("CleanupAbandoned() = %d, %v", n, err)
	}
	if got, _ := f.db.GetMeeting(f.ctx, old.ID); got != nil {
		t.Error("abandoned meeting still stored")
	}
	if got, _ := f.db.GetMeeting(f.ctx, fresh.ID); got == nil {
		t.Error("fresh meeting purged")
	}
	if exists, _ := f.db.ReportExists(f.ctx, old.ID); exists {
		t.Error("abandoned meetings get no report")
	}
	if e := f.events.last(entity.EventMeetingClosed); e == nil || e.Reason != entity.ReasonAbandoned {
		t.Errorf("meeting_closed event = %+v", e)
	}
}

func TestRecoverPurges(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	f.participant(t, m, "Ana")
	f.activePoll(t, m, "Yes", "No")

	// a crash right after the meeting was closed for its report
	if err := f.db.CloseMeeting(f.ctx, m.ID, entity.ReasonReport, f.clock.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.core.MeetingByCode(f.ctx, m.MeetingCode); err == nil {
		t.Fatal("closed meeting must not be readable")
	}

	n, err := f.core.RecoverPurges(f.ctx)
	if err != nil || n != 0 {
		t.Fatalf("RecoverPurges() within grace = %d, %v", n, err)
	}

	f.clock.Advance(time.Minute)
	n, err = f.core.RecoverPurges(f.ctx)
	if err != nil || n != 1 {
		t.Fatalf("RecoverPurges() = %d, %v", n, err)
	}
	counts := f.db.Counts()
	if counts["meetings"] != 0 || counts["participants"] != 0 || counts["polls"] != 0 {
		t.Errorf("counts after recovery = %v", counts)
	}
	doc, err := f.core.DownloadReport(f.ctx, m.ID, "Olga")
	if err != nil || doc == nil {
		t.Fatalf("recovered report = %v, %v", doc, err)
	}
}

func TestRecoverPurgesAfterDownload(t *testing.T) {
	db := database.NewMemoryDB()
	repo := &flakyRepo{MemoryDB: db}
	repo.purgeFailures.Store(1)
	f := newFixtureOn(t, db, repo)
	m := f.meeting(t)
	f.participant(t, m, "Ana")

	if _, err := f.core.DownloadReport(f.ctx, m.ID, "Olga"); err != nil {
		t.Fatalf("DownloadReport() error = %v", err)
	}
	// the purge failed, the closed meeting waits for recovery
	if counts := f.db.Counts(); counts["meetings"] != 1 || counts["reports"] != 0 {
		t.Fatalf("counts after download = %v", counts)
	}

	f.clock.Advance(time.Minute)
	n, err := f.core.RecoverPurges(f.ctx)
	if err != nil || n != 1 {
		t.Fatalf("RecoverPurges() = %d, %v", n, err)
	}
	_, err = f.core.DownloadReport(f.ctx, m.ID, "Olga")
	assertKind(t, err, entity.ErrNotFound)
	for name, n := range f.db.Counts() {
		if n != 0 {
			t.Errorf("%s still holds %d documents", name, n)
		}
	}
}

func TestOrganizerPresence(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	scrutators := f.scrutators(t, m, "Sam", "Tia")

	_, err := f.core.PartialReport(f.ctx, m.ID, "Sam")
	assertKind(t, err, entity.ErrForbidden)

	f.clock.Advance(6 * time.Minute)
	n, err := f.core.SweepOrganizerPresence(f.ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepOrganizerPresence() = %d, %v", n, err)
	}
	e := f.events.last(entity.EventLeadershipTransferred)
	if e == nil || e.NewLeader != scrutators[0].Name {
		t.Fatalf("leadership event = %+v", e)
	}
	if n, _ = f.core.SweepOrganizerPresence(f.ctx); n != 0 {
		t.Error("an absent organizer is reported once")
	}

	if err = f.core.Heartbeat(f.ctx, m.ID, "sam"); err != nil {
		t.Errorf("leader heartbeat error = %v", err)
	}
	assertKind(t, f.core.Heartbeat(f.ctx, m.ID, "Tia"), entity.ErrForbidden)

	doc, err := f.core.PartialReport(f.ctx, m.ID, "Tia")
	if err != nil || !doc.Data.Partial {
		t.Fatalf("PartialReport() = %+v, %v", doc, err)
	}
	if _, err = f.core.MeetingByCode(f.ctx, m.MeetingCode); err != nil {
		t.Error("partial report must not close the meeting")
	}
	_, err = f.core.PartialReport(f.ctx, m.ID, "Mallory")
	assertKind(t, err, entity.ErrForbidden)

	if err = f.core.Heartbeat(f.ctx, m.ID, "Olga"); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.db.GetMeeting(f.ctx, m.ID)
	if !stored.OrganizerPresent || stored.LeadershipTransferredTo != "" {
		t.Errorf("organizer return = %+v", stored)
	}
	if f.events.count(entity.EventOrganizerReturned) != 1 {
		t.Error("organizer_returned not emitted")
	}
}

func TestOrganizerAbsentWithoutScrutators(t *testing.T) {
	f := newFixture(t)
	f.meeting(t)
	f.clock.Advance(10 * time.Minute)
	if n, err := f.core.SweepOrganizerPresence(f.ctx); err != nil || n != 1 {
		t.Fatalf("SweepOrganizerPresence() = %d, %v", n, err)
	}
	if f.events.count(entity.EventOrganizerAbsent) != 1 {
		t.Error("organizer_absent not emitted")
	}
}
