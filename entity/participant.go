package entity

import "time"

type Participant struct {
	ID        string         `json:"id" bson:"_id"`
	MeetingID string         `json:"meeting_id" bson:"meeting_id"`
	Name      string         `json:"name" bson:"name"`
	NameKey   string         `json:"-" bson:"name_key"`
	Status    ApprovalStatus `json:"approval_status" bson:"approval_status"`
	JoinedAt  time.Time      `json:"joined_at" bson:"joined_at"`
	DecidedAt *time.Time     `json:"decided_at,omitempty" bson:"decided_at,omitempty"`
	TokenHash string         `json:"-" bson:"token_hash"`
}

func (p *Participant) IsApproved() bool {
	return p != nil && p.Status == StatusApproved
}

// JoinResult is returned once, to the joining participant only.
type JoinResult struct {
	Participant *Participant `json:"participant"`
	Token       string       `json:"token"`
}
