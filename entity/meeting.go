package entity

import (
	"time"

	"votesecret/lib/names"
)

type MeetingStatus string

const (
	MeetingActive MeetingStatus = "active"
	// MeetingClosed marks a meeting whose purge has started; it is never readable again.
	MeetingClosed MeetingStatus = "closed"
)

// ApprovalStatus is shared by participants and scrutators.
// pending is the only non-terminal value.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

type Meeting struct {
	ID                      string        `json:"id" bson:"_id"`
	Title                   string        `json:"title" bson:"title"`
	OrganizerName           string        `json:"organizer_name" bson:"organizer_name"`
	OrganizerTimezone       string        `json:"organizer_timezone,omitempty" bson:"organizer_timezone,omitempty"`
	MeetingCode             string        `json:"meeting_code" bson:"meeting_code"`
	ScrutatorCode           string        `json:"scrutator_code,omitempty" bson:"scrutator_code,omitempty"`
	Status                  MeetingStatus `json:"status" bson:"status"`
	OrganizerPresent        bool          `json:"organizer_present" bson:"organizer_present"`
	LeadershipTransferredTo string        `json:"leadership_transferred_to,omitempty" bson:"leadership_transferred_to,omitempty"`
	LastHeartbeat           time.Time     `json:"last_heartbeat" bson:"last_heartbeat"`
	CreatedAt               time.Time     `json:"created_at" bson:"created_at"`
	ClosedAt                *time.Time    `json:"-" bson:"closed_at,omitempty"`
	CloseReason             string        `json:"-" bson:"close_reason,omitempty"`
	// ReportStoredAt is set once the final report was saved; recovery never builds a second one.
	ReportStoredAt          *time.Time    `json:"-" bson:"report_stored_at,omitempty"`
}

func (m *Meeting) IsActive() bool {
	return m != nil && m.Status == MeetingActive
}

// Public is the copy handed to participants and scrutators: no scrutator access code.
func (m *Meeting) Public() *Meeting {
	if m == nil {
		return nil
	}
	c := *m
	c.ScrutatorCode = ""
	return &c
}

// IsLeader reports whether name may act for the organizer:
// the organizer, or the scrutator leadership passed to while the organizer is away.
func (m *Meeting) IsLeader(name string) bool {
	if name == "" {
		return false
	}
	if names.Equal(m.OrganizerName, name) {
		return true
	}
	return m.LeadershipTransferredTo != "" && names.Equal(m.LeadershipTransferredTo, name)
}

// LeaderKeys lists the name keys that may act for the organizer right now.
func (m *Meeting) LeaderKeys() []string {
	keys := []string{names.Key(m.OrganizerName)}
	if m.LeadershipTransferredTo != "" {
		keys = append(keys, names.Key(m.LeadershipTransferredTo))
	}
	return keys
}
