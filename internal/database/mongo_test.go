package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"votesecret/entity"
)

// mockMongo points the repository at the mock deployment. The mock cannot run
// transactions, so writes take the sequential path.
func mockMongo(mt *mtest.T) *MongoDB {
	m := &MongoDB{
		ctx:      context.Background(),
		database: mt.DB.Name(),
		client:   mt.Client,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	m.noTxn.Store(true)
	return m
}

func findAndModify(doc interface{}) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc})
}

func modified(n int) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n}, bson.E{Key: "nModified", Value: n})
}

func startedOn(mt *mtest.T, command string) []string {
	var names []string
	for _, e := range mt.GetAllStartedEvents() {
		if e.CommandName == command {
			names = append(names, e.Command.Lookup(command).StringValue())
		}
	}
	return names
}

func TestMongoRecordVote(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ballot := entity.Ballot{PollID: "p1", ParticipantID: "ana"}
	vote := &entity.Vote{ID: "v1", PollID: "p1", OptionID: "o1", VotedAt: time.Now()}

	mt.Run("counted", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			findAndModify(bson.D{
				{"_id", "p1"},
				{"status", entity.PollActive},
				{"options", bson.A{bson.D{{"id", "o1"}, {"text", "Yes"}, {"votes", 1}}}},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)
		poll, err := m.RecordVote(context.Background(), ballot, vote)
		if err != nil {
			mt.Fatalf("RecordVote() error = %v", err)
		}
		if poll.Options[0].Votes != 1 {
			mt.Errorf("votes = %d, want 1", poll.Options[0].Votes)
		}
		if got := startedOn(mt, "insert"); len(got) != 2 || got[0] != collectionBallots || got[1] != collectionVotes {
			mt.Errorf("inserts = %v", got)
		}
	})

	mt.Run("second ballot", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: ballots",
		}))
		_, err := m.RecordVote(context.Background(), ballot, vote)
		if !errors.Is(err, entity.ErrDuplicateKey) {
			mt.Fatalf("RecordVote() error = %v, want ErrDuplicateKey", err)
		}
		if got := startedOn(mt, "findAndModify"); len(got) != 0 {
			mt.Error("counter must not move after a rejected ballot")
		}
	})

	mt.Run("poll closed meanwhile", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			findAndModify(nil),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)
		_, err := m.RecordVote(context.Background(), ballot, vote)
		if !errors.Is(err, entity.ErrStaleState) {
			mt.Fatalf("RecordVote() error = %v, want ErrStaleState", err)
		}
		if got := startedOn(mt, "delete"); len(got) != 1 || got[0] != collectionBallots {
			mt.Errorf("ballot not withdrawn, deletes = %v", got)
		}
		if got := startedOn(mt, "insert"); len(got) != 1 {
			mt.Errorf("vote stored for a closed poll, inserts = %v", got)
		}
	})
}

func TestMongoAddReportVote(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	vote := entity.ReportVote{Name: "Sam", NameKey: "sam", Approved: true, At: time.Now()}
	round := func(decision entity.Decision, voters ...string) bson.D {
		votes := bson.A{}
		for _, v := range voters {
			votes = append(votes, bson.D{{"name", v}, {"name_key", v}, {"approved", true}})
		}
		return bson.D{{"_id", "r1"}, {"meeting_id", "m1"}, {"decision", decision}, {"votes", votes}}
	}
	ns := func(mt *mtest.T) string {
		return mt.DB.Name() + "." + collectionReportRequests
	}

	mt.Run("appended", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(findAndModify(round(entity.DecisionPending, "sam")))
		r, err := m.AddReportVote(context.Background(), "r1", vote)
		if err != nil {
			mt.Fatalf("AddReportVote() error = %v", err)
		}
		if !r.HasVoted("sam") {
			mt.Errorf("round = %+v", r)
		}
	})

	mt.Run("same scrutator again", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(
			findAndModify(nil),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, round(entity.DecisionPending, "sam")),
		)
		_, err := m.AddReportVote(context.Background(), "r1", vote)
		if !errors.Is(err, entity.ErrDuplicateKey) {
			mt.Fatalf("AddReportVote() error = %v, want ErrDuplicateKey", err)
		}
	})

	mt.Run("round decided", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(
			findAndModify(nil),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, round(entity.DecisionApproved, "tia", "uma")),
		)
		_, err := m.AddReportVote(context.Background(), "r1", vote)
		if !errors.Is(err, entity.ErrStaleState) {
			mt.Fatalf("AddReportVote() error = %v, want ErrStaleState", err)
		}
	})

	mt.Run("round gone", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(
			findAndModify(nil),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
		)
		_, err := m.AddReportVote(context.Background(), "r1", vote)
		if !errors.Is(err, entity.ErrStaleState) {
			mt.Fatalf("AddReportVote() error = %v, want ErrStaleState", err)
		}
	})
}

func TestMongoConditionalUpdates(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Now()

	mt.Run("decision won", func(mt *mtest.T) {
		mt.AddMockResponses(modified(1))
		won, err := mockMongo(mt).DecideReportRequest(context.Background(), "r1", entity.DecisionApproved, now)
		if err != nil || !won {
			mt.Errorf("DecideReportRequest() = %v, %v", won, err)
		}
	})

	mt.Run("decision lost", func(mt *mtest.T) {
		mt.AddMockResponses(modified(0))
		won, err := mockMongo(mt).DecideReportRequest(context.Background(), "r1", entity.DecisionApproved, now)
		if err != nil || won {
			mt.Errorf("DecideReportRequest() = %v, %v", won, err)
		}
	})

	mt.Run("close already closed", func(mt *mtest.T) {
		mt.AddMockResponses(modified(0))
		err := mockMongo(mt).CloseMeeting(context.Background(), "m1", entity.ReasonReport, now)
		if !errors.Is(err, entity.ErrStaleState) {
			mt.Errorf("CloseMeeting() error = %v, want ErrStaleState", err)
		}
	})

	mt.Run("mark stored", func(mt *mtest.T) {
		mt.AddMockResponses(modified(1))
		if err := mockMongo(mt).MarkReportStored(context.Background(), "m1", now); err != nil {
			mt.Errorf("MarkReportStored() error = %v", err)
		}
	})

	mt.Run("mark stored on a purged meeting", func(mt *mtest.T) {
		mt.AddMockResponses(modified(0))
		err := mockMongo(mt).MarkReportStored(context.Background(), "m1", now)
		if !errors.Is(err, entity.ErrStaleState) {
			mt.Errorf("MarkReportStored() error = %v, want ErrStaleState", err)
		}
	})
}

func TestMongoPurgeMeeting(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	deleted := func(n int) bson.D {
		return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n})
	}

	mt.Run("meeting deleted last", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mt.DB.Name()+"."+collectionPolls, mtest.FirstBatch, bson.D{{"_id", "p1"}}),
			deleted(3), // votes
			deleted(3), // ballots
			deleted(1), // polls
			deleted(3), // participants
			deleted(0), // scrutators
			deleted(0), // report requests
			deleted(1), // meeting
		)
		if err := m.PurgeMeeting(context.Background(), "m1"); err != nil {
			mt.Fatalf("PurgeMeeting() error = %v", err)
		}
		want := []string{
			collectionVotes, collectionBallots, collectionPolls, collectionParticipants,
			collectionScrutators, collectionReportRequests, collectionMeetings,
		}
		got := startedOn(mt, "delete")
		if len(got) != len(want) {
			mt.Fatalf("deletes = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				mt.Errorf("delete %d on %s, want %s", i, got[i], want[i])
			}
		}
	})

	mt.Run("interrupted keeps the meeting", func(mt *mtest.T) {
		m := mockMongo(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mt.DB.Name()+"."+collectionPolls, mtest.FirstBatch),
			deleted(0),
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Name: "InternalError", Message: "node is down"}),
		)
		if err := m.PurgeMeeting(context.Background(), "m1"); err == nil {
			mt.Fatal("PurgeMeeting() error = nil")
		}
		for _, name := range startedOn(mt, "delete") {
			if name == collectionMeetings {
				mt.Error("meeting deleted after a failed purge step")
			}
		}
	})
}
