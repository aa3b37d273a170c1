package entity

import "time"

type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

type ReportVote struct {
	Name     string    `json:"name" bson:"name"`
	NameKey  string    `json:"-" bson:"name_key"`
	Approved bool      `json:"approved" bson:"approved"`
	At       time.Time `json:"at" bson:"at"`
}

// ReportRequest is one scrutator round. The set of eligible voters is fixed
// when the round opens, so approvals granted later do not move the threshold.
type ReportRequest struct {
	ID             string       `json:"id" bson:"_id"`
	MeetingID      string       `json:"meeting_id" bson:"meeting_id"`
	RequestedBy    string       `json:"requested_by" bson:"requested_by"`
	ScrutatorCount int          `json:"scrutator_count" bson:"scrutator_count"`
	MajorityNeeded int          `json:"majority_needed" bson:"majority_needed"`
	Eligible       []string     `json:"-" bson:"eligible"`
	Votes          []ReportVote `json:"votes" bson:"votes"`
	Decision       Decision     `json:"decision" bson:"decision"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
	ExpiresAt      time.Time    `json:"expires_at" bson:"expires_at"`
	DecidedAt      *time.Time   `json:"decided_at,omitempty" bson:"decided_at,omitempty"`
}

// MajorityNeeded is floor(n/2)+1.
func MajorityNeeded(scrutators int) int {
	return scrutators/2 + 1
}

func (r *ReportRequest) IsEligible(nameKey string) bool {
	for _, k := range r.Eligible {
		if k == nameKey {
			return true
		}
	}
	return false
}

func (r *ReportRequest) HasVoted(nameKey string) bool {
	for _, v := range r.Votes {
		if v.NameKey == nameKey {
			return true
		}
	}
	return false
}

func (r *ReportRequest) Expired(now time.Time) bool {
	return r.Decision == DecisionPending && !now.Before(r.ExpiresAt)
}

func (r *ReportRequest) Tally() Tally {
	t := Tally{
		ScrutatorCount: r.ScrutatorCount,
		MajorityNeeded: r.MajorityNeeded,
		VotesCast:      len(r.Votes),
	}
	for _, v := range r.Votes {
		if v.Approved {
			t.YesVotes++
		} else {
			t.NoVotes++
		}
	}
	return t
}

// Evaluate decides the round from the votes recorded so far. Approval wins as soon
// as yes votes reach the majority; rejection as soon as the remaining voters
// can no longer lift yes votes to it.
func (r *ReportRequest) Evaluate() Decision {
	return Evaluate(r.Tally())
}

func Evaluate(t Tally) Decision {
	if t.YesVotes >= t.MajorityNeeded {
		return DecisionApproved
	}
	remaining := t.ScrutatorCount - t.VotesCast
	if remaining < 0 {
		remaining = 0
	}
	if t.YesVotes+remaining < t.MajorityNeeded {
		return DecisionRejected
	}
	return DecisionPending
}
