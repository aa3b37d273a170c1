package entity

import "time"

type Scrutator struct {
	ID         string         `json:"id" bson:"_id"`
	MeetingID  string         `json:"meeting_id" bson:"meeting_id"`
	Name       string         `json:"name" bson:"name"`
	NameKey    string         `json:"-" bson:"name_key"`
	Status     ApprovalStatus `json:"approval_status" bson:"approval_status"`
	AddedAt    time.Time      `json:"added_at" bson:"added_at"`
	JoinedAt   *time.Time     `json:"joined_at,omitempty" bson:"joined_at,omitempty"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty" bson:"approved_at,omitempty"`
}

func (s *Scrutator) IsApproved() bool {
	return s != nil && s.Status == StatusApproved
}

type RejectedName struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ScrutatorBatch is the outcome of registering scrutator names for a meeting.
type ScrutatorBatch struct {
	ScrutatorCode string         `json:"scrutator_code"`
	Added         []*Scrutator   `json:"added,omitempty"`
	Rejected      []RejectedName `json:"rejected,omitempty"`
	Scrutators    []*Scrutator   `json:"scrutators"`
}

type ScrutatorJoinResult struct {
	Status     ApprovalStatus `json:"status"`
	Scrutator  *Scrutator     `json:"scrutator"`
	Meeting    *Meeting       `json:"meeting,omitempty"`
	AccessType string         `json:"access_type"`
}
