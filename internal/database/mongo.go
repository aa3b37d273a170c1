package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"votesecret/entity"
	"votesecret/internal/config"
	"votesecret/lib/sl"
)

const (
	collectionMeetings       = "meetings"
	collectionParticipants   = "participants"
	collectionScrutators     = "scrutators"
	collectionPolls          = "polls"
	collectionVotes          = "votes"
	collectionBallots        = "ballots"
	collectionReportRequests = "report_requests"
	collectionReports        = "reports"
)

var collectionNames = []string{
	collectionMeetings,
	collectionParticipants,
	collectionScrutators,
	collectionPolls,
	collectionVotes,
	collectionBallots,
	collectionReportRequests,
	collectionReports,
}

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
	client        *mongo.Client
	log           *slog.Logger
	// set once the server refused a transaction; later writes go sequential
	noTxn atomic.Bool
}

func NewMongoClient(conf *config.Config, log *slog.Logger) *MongoDB {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
		log:           log.With(sl.Module("database.mongo")),
	}
	return client
}

// Connect opens the shared client and makes sure indexes exist.
func (m *MongoDB) Connect(ctx context.Context) error {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return fmt.Errorf("mongodb connect: %w", err)
	}
	if err = connection.Ping(ctx, readpref.Primary()); err != nil {
		_ = connection.Disconnect(ctx)
		return fmt.Errorf("mongodb ping: %w", err)
	}
	m.client = connection
	if err = EnsureIndexes(ctx, m.db()); err != nil {
		return fmt.Errorf("mongodb indexes: %w", err)
	}
	return nil
}

func (m *MongoDB) Close() {
	if m.client != nil {
		_ = m.client.Disconnect(m.ctx)
	}
}

func (m *MongoDB) Ping(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("mongodb: not connected")
	}
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) db() *mongo.Database {
	return m.client.Database(m.database)
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.db().Collection(name)
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return fmt.Errorf("mongodb find: %w", err)
}

func writeError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrDuplicateKey
	}
	return err
}

// withTransaction runs fn inside a transaction, or directly when the server
// is a standalone node without transaction support.
func (m *MongoDB) withTransaction(ctx context.Context, fn func(sc context.Context) error) error {
	if !m.noTxn.Load() {
		session, err := m.client.StartSession()
		if err != nil {
			return fmt.Errorf("mongodb session: %w", err)
		}
		defer session.EndSession(ctx)
		_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, fn(sc)
		})
		if err == nil || !IsNotSupported(err) {
			return err
		}
		m.noTxn.Store(true)
		m.log.Warn("transactions not supported, falling back to sequential writes", sl.Err(err))
	}
	return fn(ctx)
}

func (m *MongoDB) findOne(ctx context.Context, name string, filter bson.D, v interface{}) (bool, error) {
	err := m.collection(name).FindOne(ctx, filter).Decode(v)
	if err != nil {
		return false, m.findError(err)
	}
	return true, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.D, opts ...*options.FindOptions) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*T
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// meetings

func (m *MongoDB) CreateMeeting(ctx context.Context, meeting *entity.Meeting) error {
	_, err := m.collection(collectionMeetings).InsertOne(ctx, meeting)
	return writeError(err)
}

func (m *MongoDB) GetMeeting(ctx context.Context, id string) (*entity.Meeting, error) {
	var meeting entity.Meeting
	found, err := m.findOne(ctx, collectionMeetings, bson.D{{"_id", id}}, &meeting)
	if !found {
		return nil, err
	}
	return &meeting, nil
}

func (m *MongoDB) GetMeetingByCode(ctx context.Context, code string) (*entity.Meeting, error) {
	var meeting entity.Meeting
	found, err := m.findOne(ctx, collectionMeetings, bson.D{{"meeting_code", code}}, &meeting)
	if !found {
		return nil, err
	}
	return &meeting, nil
}

func (m *MongoDB) GetMeetingByScrutatorCode(ctx context.Context, code string) (*entity.Meeting, error) {
	if code == "" {
		return nil, nil
	}
	var meeting entity.Meeting
	found, err := m.findOne(ctx, collectionMeetings, bson.D{{"scrutator_code", code}}, &meeting)
	if !found {
		return nil, err
	}
	return &meeting, nil
}

func (m *MongoDB) SetScrutatorCode(ctx context.Context, meetingID, code string) (string, error) {
	filter := bson.D{
		{"_id", meetingID},
		{"$or", bson.A{
			bson.D{{"scrutator_code", bson.D{{"$exists", false}}}},
			bson.D{{"scrutator_code", ""}},
		}},
	}
	update := bson.D{{"$set", bson.D{{"scrutator_code", code}}}}
	res, err := m.collection(collectionMeetings).UpdateOne(ctx, filter, update)
	if err != nil {
		return "", writeError(err)
	}
	if res.MatchedCount == 1 {
		return code, nil
	}
	meeting, err := m.GetMeeting(ctx, meetingID)
	if err != nil {
		return "", err
	}
	if meeting == nil || meeting.ScrutatorCode == "" {
		return "", entity.ErrStaleState
	}
	return meeting.ScrutatorCode, nil
}

func (m *MongoDB) TouchMeeting(ctx context.Context, meetingID string, at time.Time, organizer bool) error {
	filter := bson.D{{"_id", meetingID}, {"status", entity.MeetingActive}}
	update := bson.D{{"$set", bson.D{{"last_heartbeat", at}}}}
	if organizer {
		update = bson.D{
			{"$set", bson.D{
				{"last_heartbeat", at},
				{"organizer_present", true},
			}},
			{"$unset", bson.D{{"leadership_transferred_to", ""}}},
		}
	}
	_, err := m.collection(collectionMeetings).UpdateOne(ctx, filter, update)
	return err
}

func (m *MongoDB) SetLeadership(ctx context.Context, meetingID string, present bool, leader string) error {
	filter := bson.D{{"_id", meetingID}, {"status", entity.MeetingActive}}
	update := bson.D{{"$set", bson.D{
		{"organizer_present", present},
		{"leadership_transferred_to", leader},
	}}}
	res, err := m.collection(collectionMeetings).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return entity.ErrStaleState
	}
	return nil
}

func (m *MongoDB) CloseMeeting(ctx context.Context, meetingID, reason string, at time.Time) error {
	filter := bson.D{{"_id", meetingID}, {"status", entity.MeetingActive}}
	update := bson.D{{"$set", bson.D{
		{"status", entity.MeetingClosed},
		{"close_reason", reason},
		{"closed_at", at},
	}}}
	res, err := m.collection(collectionMeetings).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.ModifiedCount == 0 {
		return entity.ErrStaleState
	}
	return nil
}

// MarkReportStored records on the closed meeting that its final report was saved.
func (m *MongoDB) MarkReportStored(ctx context.Context, meetingID string, at time.Time) error {
	filter := bson.D{{"_id", meetingID}, {"status", entity.MeetingClosed}}
	update := bson.D{{"$set", bson.D{{"report_stored_at", at}}}}
	res, err := m.collection(collectionMeetings).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return entity.ErrStaleState
	}
	return nil
}

func (m *MongoDB) ClosedMeetings(ctx context.Context) ([]*entity.Meeting, error) {
	filter := bson.D{{"status", entity.MeetingClosed}}
	return findAll[entity.Meeting](ctx, m.collection(collectionMeetings), filter)
}

func (m *MongoDB) StaleMeetings(ctx context.Context, before time.Time) ([]*entity.Meeting, error) {
	filter := bson.D{
		{"status", entity.MeetingActive},
		{"last_heartbeat", bson.D{{"$lt", before}}},
	}
	return findAll[entity.Meeting](ctx, m.collection(collectionMeetings), filter)
}

func (m *MongoDB) AbsentOrganizers(ctx context.Context, before time.Time) ([]*entity.Meeting, error) {
	filter := bson.D{
		{"status", entity.MeetingActive},
		{"organizer_present", true},
		{"last_heartbeat", bson.D{{"$lt", before}}},
	}
	return findAll[entity.Meeting](ctx, m.collection(collectionMeetings), filter)
}

// PurgeMeeting deletes the meeting and everything it owns in one transaction.
// The meeting document goes last, so an interrupted sequential purge leaves
// a closed meeting behind for the recovery job to finish.
func (m *MongoDB) PurgeMeeting(ctx context.Context, meetingID string) error {
	return m.withTransaction(ctx, func(sc context.Context) error {
		var pollIDs []string
		cursor, err := m.collection(collectionPolls).Find(sc, bson.D{{"meeting_id", meetingID}},
			options.Find().SetProjection(bson.D{{"_id", 1}}))
		if err != nil {
			return fmt.Errorf("list polls: %w", err)
		}
		var ids []struct {
			ID string `bson:"_id"`
		}
		if err = cursor.All(sc, &ids); err != nil {
			return fmt.Errorf("decode polls: %w", err)
		}
		for _, id := range ids {
			pollIDs = append(pollIDs, id.ID)
		}

		if len(pollIDs) > 0 {
			byPoll := bson.D{{"poll_id", bson.D{{"$in", pollIDs}}}}
			if _, err = m.collection(collectionVotes).DeleteMany(sc, byPoll); err != nil {
				return fmt.Errorf("delete votes: %w", err)
			}
			if _, err = m.collection(collectionBallots).DeleteMany(sc, byPoll); err != nil {
				return fmt.Errorf("delete ballots: %w", err)
			}
		}
		byMeeting := bson.D{{"meeting_id", meetingID}}
		for _, name := range []string{collectionPolls, collectionParticipants, collectionScrutators, collectionReportRequests} {
			if _, err = m.collection(name).DeleteMany(sc, byMeeting); err != nil {
				return fmt.Errorf("delete %s: %w", name, err)
			}
		}
		if _, err = m.collection(collectionMeetings).DeleteOne(sc, bson.D{{"_id", meetingID}}); err != nil {
			return fmt.Errorf("delete meeting: %w", err)
		}
		return nil
	})
}

// participants

func (m *MongoDB) CreateParticipant(ctx context.Context, p *entity.Participant) error {
	_, err := m.collection(collectionParticipants).InsertOne(ctx, p)
	return writeError(err)
}

func (m *MongoDB) GetParticipant(ctx context.Context, id string) (*entity.Participant, error) {
	var p entity.Participant
	found, err := m.findOne(ctx, collectionParticipants, bson.D{{"_id", id}}, &p)
	if !found {
		return nil, err
	}
	return &p, nil
}

func (m *MongoDB) GetParticipantByToken(ctx context.Context, tokenHash string) (*entity.Participant, error) {
	if tokenHash == "" {
		return nil, nil
	}
	var p entity.Participant
	found, err := m.findOne(ctx, collectionParticipants, bson.D{{"token_hash", tokenHash}}, &p)
	if !found {
		return nil, err
	}
	return &p, nil
}

func (m *MongoDB) ListParticipants(ctx context.Context, meetingID string) ([]*entity.Participant, error) {
	opts := options.Find().SetSort(bson.D{{"joined_at", 1}})
	return findAll[entity.Participant](ctx, m.collection(collectionParticipants), bson.D{{"meeting_id", meetingID}}, opts)
}

func (m *MongoDB) SetParticipantStatus(ctx context.Context, id string, status entity.ApprovalStatus, at time.Time) (*entity.Participant, error) {
	filter := bson.D{{"_id", id}, {"approval_status", entity.StatusPending}}
	update := bson.D{{"$set", bson.D{
		{"approval_status", status},
		{"decided_at", at},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p entity.Participant
	err := m.collection(collectionParticipants).FindOneAndUpdate(ctx, filter, update, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrStaleState
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// scrutators

func (m *MongoDB) CreateScrutator(ctx context.Context, s *entity.Scrutator) error {
	_, err := m.collection(collectionScrutators).InsertOne(ctx, s)
	return writeError(err)
}

func (m *MongoDB) GetScrutator(ctx context.Context, id string) (*entity.Scrutator, error) {
	var s entity.Scrutator
	found, err := m.findOne(ctx, collectionScrutators, bson.D{{"_id", id}}, &s)
	if !found {
		return nil, err
	}
	return &s, nil
}

func (m *MongoDB) GetScrutatorByName(ctx context.Context, meetingID, nameKey string) (*entity.Scrutator, error) {
	var s entity.Scrutator
	found, err := m.findOne(ctx, collectionScrutators, bson.D{{"meeting_id", meetingID}, {"name_key", nameKey}}, &s)
	if !found {
		return nil, err
	}
	return &s, nil
}

func (m *MongoDB) ListScrutators(ctx context.Context, meetingID string) ([]*entity.Scrutator, error) {
	opts := options.Find().SetSort(bson.D{{"added_at", 1}})
	return findAll[entity.Scrutator](ctx, m.collection(collectionScrutators), bson.D{{"meeting_id", meetingID}}, opts)
}

func (m *MongoDB) SetScrutatorStatus(ctx context.Context, id string, status entity.ApprovalStatus, at time.Time) (*entity.Scrutator, error) {
	filter := bson.D{{"_id", id}, {"approval_status", entity.StatusPending}}
	set := bson.D{{"approval_status", status}}
	if status == entity.StatusApproved {
		set = append(set, bson.E{Key: "approved_at", Value: at})
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var s entity.Scrutator
	err := m.collection(collectionScrutators).FindOneAndUpdate(ctx, filter, bson.D{{"$set", set}}, opts).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrStaleState
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MongoDB) MarkScrutatorJoined(ctx context.Context, id string, at time.Time) (bool, error) {
	filter := bson.D{{"_id", id}, {"joined_at", bson.D{{"$exists", false}}}}
	update := bson.D{{"$set", bson.D{{"joined_at", at}}}}
	res, err := m.collection(collectionScrutators).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// polls and votes

func (m *MongoDB) CreatePoll(ctx context.Context, p *entity.Poll) error {
	_, err := m.collection(collectionPolls).InsertOne(ctx, p)
	return writeError(err)
}

func (m *MongoDB) GetPoll(ctx context.Context, id string) (*entity.Poll, error) {
	var p entity.Poll
	found, err := m.findOne(ctx, collectionPolls, bson.D{{"_id", id}}, &p)
	if !found {
		return nil, err
	}
	return &p, nil
}

func (m *MongoDB) ListPolls(ctx context.Context, meetingID string) ([]*entity.Poll, error) {
	opts := options.Find().SetSort(bson.D{{"created_at", 1}})
	return findAll[entity.Poll](ctx, m.collection(collectionPolls), bson.D{{"meeting_id", meetingID}}, opts)
}

func (m *MongoDB) transitionPoll(ctx context.Context, id string, from entity.PollStatus, set bson.D) (*entity.Poll, error) {
	filter := bson.D{{"_id", id}, {"status", from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p entity.Poll
	err := m.collection(collectionPolls).FindOneAndUpdate(ctx, filter, bson.D{{"$set", set}}, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrStaleState
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MongoDB) StartPoll(ctx context.Context, id string, at time.Time, closesAt *time.Time) (*entity.Poll, error) {
	set := bson.D{
		{"status", entity.PollActive},
		{"timer_started_at", at},
	}
	if closesAt != nil {
		set = append(set, bson.E{Key: "closes_at", Value: *closesAt})
	}
	return m.transitionPoll(ctx, id, entity.PollDraft, set)
}

func (m *MongoDB) ClosePoll(ctx context.Context, id string, at time.Time) (*entity.Poll, error) {
	set := bson.D{
		{"status", entity.PollClosed},
		{"closed_at", at},
	}
	return m.transitionPoll(ctx, id, entity.PollActive, set)
}

// RecordVote inserts the ballot first; its unique index is what stops a second
// vote by the same participant. The counter is then bumped only while the poll
// is still active and names the option.
func (m *MongoDB) RecordVote(ctx context.Context, ballot entity.Ballot, vote *entity.Vote) (*entity.Poll, error) {
	var updated entity.Poll
	err := m.withTransaction(ctx, func(sc context.Context) error {
		if _, err := m.collection(collectionBallots).InsertOne(sc, ballot); err != nil {
			return writeError(err)
		}
		filter := bson.D{
			{"_id", vote.PollID},
			{"status", entity.PollActive},
			{"options.id", vote.OptionID},
		}
		update := bson.D{{"$inc", bson.D{{"options.$.votes", 1}}}}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		err := m.collection(collectionPolls).FindOneAndUpdate(sc, filter, update, opts).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			// without a transaction the ballot would otherwise stay behind
			_, _ = m.collection(collectionBallots).DeleteOne(sc, ballot)
			return entity.ErrStaleState
		}
		if err != nil {
			return err
		}
		if _, err = m.collection(collectionVotes).InsertOne(sc, vote); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (m *MongoDB) HasBallot(ctx context.Context, ballot entity.Ballot) (bool, error) {
	filter := bson.D{{"poll_id", ballot.PollID}, {"participant_id", ballot.ParticipantID}}
	n, err := m.collection(collectionBallots).CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MongoDB) DuePolls(ctx context.Context, now time.Time) ([]*entity.Poll, error) {
	filter := bson.D{
		{"status", entity.PollActive},
		{"closes_at", bson.D{{"$lte", now}}},
	}
	return findAll[entity.Poll](ctx, m.collection(collectionPolls), filter)
}

// report requests

func (m *MongoDB) CreateReportRequest(ctx context.Context, r *entity.ReportRequest) error {
	_, err := m.collection(collectionReportRequests).InsertOne(ctx, r)
	return writeError(err)
}

func (m *MongoDB) GetReportRequest(ctx context.Context, meetingID string) (*entity.ReportRequest, error) {
	var r entity.ReportRequest
	found, err := m.findOne(ctx, collectionReportRequests, bson.D{{"meeting_id", meetingID}}, &r)
	if !found {
		return nil, err
	}
	return &r, nil
}

// AddReportVote appends the vote atomically and returns the round as it stands
// right after this vote, so each caller evaluates its own snapshot.
func (m *MongoDB) AddReportVote(ctx context.Context, requestID string, vote entity.ReportVote) (*entity.ReportRequest, error) {
	filter := bson.D{
		{"_id", requestID},
		{"decision", entity.DecisionPending},
		{"votes.name_key", bson.D{{"$ne", vote.NameKey}}},
	}
	update := bson.D{{"$push", bson.D{{"votes", vote}}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r entity.ReportRequest
	err := m.collection(collectionReportRequests).FindOneAndUpdate(ctx, filter, update, opts).Decode(&r)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	var current entity.ReportRequest
	found, err := m.findOne(ctx, collectionReportRequests, bson.D{{"_id", requestID}}, &current)
	if err != nil {
		return nil, err
	}
	if found && current.Decision == entity.DecisionPending && current.HasVoted(vote.NameKey) {
		return nil, entity.ErrDuplicateKey
	}
	return nil, entity.ErrStaleState
}

func (m *MongoDB) DecideReportRequest(ctx context.Context, requestID string, decision entity.Decision, at time.Time) (bool, error) {
	filter := bson.D{{"_id", requestID}, {"decision", entity.DecisionPending}}
	update := bson.D{{"$set", bson.D{
		{"decision", decision},
		{"decided_at", at},
	}}}
	res, err := m.collection(collectionReportRequests).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (m *MongoDB) DeleteReportRequest(ctx context.Context, requestID string) error {
	_, err := m.collection(collectionReportRequests).DeleteOne(ctx, bson.D{{"_id", requestID}})
	return err
}

func (m *MongoDB) ExpiredReportRequests(ctx context.Context, now time.Time) ([]*entity.ReportRequest, error) {
	filter := bson.D{
		{"decision", entity.DecisionPending},
		{"expires_at", bson.D{{"$lte", now}}},
	}
	return findAll[entity.ReportRequest](ctx, m.collection(collectionReportRequests), filter)
}

// reports

func (m *MongoDB) SaveReport(ctx context.Context, doc *entity.ReportDocument) error {
	filter := bson.D{{"_id", doc.MeetingID}}
	opts := options.Replace().SetUpsert(true)
	_, err := m.collection(collectionReports).ReplaceOne(ctx, filter, doc, opts)
	return err
}

// TakeReport hands the stored report out once.
func (m *MongoDB) GetReport(ctx context.Context, meetingID string) (*entity.ReportDocument, error) {
	var doc entity.ReportDocument
	found, err := m.findOne(ctx, collectionReports, bson.D{{"_id", meetingID}}, &doc)
	if !found {
		return nil, err
	}
	return &doc, nil
}

func (m *MongoDB) TakeReport(ctx context.Context, meetingID string, now time.Time) (*entity.ReportDocument, error) {
	filter := bson.D{
		{"_id", meetingID},
		{"expires_at", bson.D{{"$gt", now}}},
	}
	var doc entity.ReportDocument
	err := m.collection(collectionReports).FindOneAndDelete(ctx, filter).Decode(&doc)
	if err != nil {
		return nil, m.findError(err)
	}
	return &doc, nil
}

func (m *MongoDB) ReportExists(ctx context.Context, meetingID string) (bool, error) {
	n, err := m.collection(collectionReports).CountDocuments(ctx, bson.D{{"_id", meetingID}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredReports backs up the TTL index, whose monitor runs only once a minute.
func (m *MongoDB) DeleteExpiredReports(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.collection(collectionReports).DeleteMany(ctx, bson.D{{"expires_at", bson.D{{"$lte", now}}}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
