package database

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes is called at startup; creating an existing index is a no-op.
// Problems from every collection are collected so one bad index does not hide the others.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	var problems []string

	sets := map[string][]mongo.IndexModel{
		collectionMeetings: {
			{Keys: bson.D{{"meeting_code", 1}}, Options: options.Index().SetName("uniq_meeting_code").SetUnique(true)},
			{
				Keys: bson.D{{"scrutator_code", 1}},
				Options: options.Index().SetName("uniq_scrutator_code").SetUnique(true).
					SetPartialFilterExpression(bson.D{{"scrutator_code", bson.D{{"$type", "string"}}}}),
			},
			{Keys: bson.D{{"status", 1}, {"last_heartbeat", 1}}, Options: options.Index().SetName("status_heartbeat")},
		},
		collectionParticipants: {
			{Keys: bson.D{{"meeting_id", 1}, {"name_key", 1}}, Options: options.Index().SetName("uniq_meeting_name").SetUnique(true)},
			{Keys: bson.D{{"token_hash", 1}}, Options: options.Index().SetName("token_hash")},
		},
		collectionScrutators: {
			{Keys: bson.D{{"meeting_id", 1}, {"name_key", 1}}, Options: options.Index().SetName("uniq_meeting_name").SetUnique(true)},
		},
		collectionPolls: {
			{Keys: bson.D{{"meeting_id", 1}, {"created_at", 1}}, Options: options.Index().SetName("meeting_created")},
			{Keys: bson.D{{"status", 1}, {"closes_at", 1}}, Options: options.Index().SetName("status_closes_at")},
		},
		collectionBallots: {
			{Keys: bson.D{{"poll_id", 1}, {"participant_id", 1}}, Options: options.Index().SetName("uniq_poll_participant").SetUnique(true)},
		},
		collectionVotes: {
			{Keys: bson.D{{"poll_id", 1}}, Options: options.Index().SetName("poll_id")},
		},
		collectionReportRequests: {
			{Keys: bson.D{{"meeting_id", 1}}, Options: options.Index().SetName("uniq_meeting").SetUnique(true)},
		},
		collectionReports: {
			{Keys: bson.D{{"expires_at", 1}}, Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0)},
		},
	}

	for _, name := range collectionNames {
		models, ok := sets[name]
		if !ok {
			continue
		}
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			problems = append(problems, name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
