package entity

import "time"

// Ballot proves that a participant took part in a poll. It never names the option.
type Ballot struct {
	PollID        string `bson:"poll_id"`
	ParticipantID string `bson:"participant_id"`
}

// Vote is the anonymous counterpart of a ballot.
type Vote struct {
	ID       string    `json:"id" bson:"_id"`
	PollID   string    `json:"poll_id" bson:"poll_id"`
	OptionID string    `json:"option_id" bson:"option_id"`
	VotedAt  time.Time `json:"voted_at" bson:"voted_at"`
}
