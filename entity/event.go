package entity

import "time"

// Event types pushed to the per-meeting channel.
const (
	EventParticipantJoined      = "participant_joined"
	EventParticipantApproved    = "participant_approved"
	EventScrutatorJoinRequest   = "scrutator_join_request"
	EventScrutatorApproved      = "scrutator_approved"
	EventPollCreated            = "poll_created"
	EventPollStarted            = "poll_started"
	EventPollClosed             = "poll_closed"
	EventVoteSubmitted          = "vote_submitted"
	EventReportRequested        = "report_generation_requested"
	EventScrutatorVoteSubmitted = "scrutator_vote_submitted"
	EventReportApproved         = "report_generation_approved"
	EventReportRejected         = "report_generation_rejected"
	EventMeetingClosed          = "meeting_closed"
	EventOrganizerAbsent        = "organizer_absent"
	EventLeadershipTransferred  = "leadership_transferred"
	EventOrganizerReturned      = "organizer_returned"
)

var allEventTypes = []string{
	EventParticipantJoined,
	EventParticipantApproved,
	EventScrutatorJoinRequest,
	EventScrutatorApproved,
	EventPollCreated,
	EventPollStarted,
	EventPollClosed,
	EventVoteSubmitted,
	EventReportRequested,
	EventScrutatorVoteSubmitted,
	EventReportApproved,
	EventReportRejected,
	EventMeetingClosed,
	EventOrganizerAbsent,
	EventLeadershipTransferred,
	EventOrganizerReturned,
}

func AllEventTypes() []string {
	result := make([]string, len(allEventTypes))
	copy(result, allEventTypes)
	return result
}

func IsValidEventType(t string) bool {
	for _, e := range allEventTypes {
		if e == t {
			return true
		}
	}
	return false
}

// Reasons attached to closing and rejection events.
const (
	ReasonReport    = "report"
	ReasonAbandoned = "abandoned"
	ReasonExpired   = "expired"
	ReasonCancelled = "cancelled"
	ReasonMajority  = "majority"
)

// Tally is the running count of a scrutator round.
type Tally struct {
	YesVotes       int `json:"yes_votes"`
	NoVotes        int `json:"no_votes"`
	VotesCast      int `json:"votes_cast"`
	ScrutatorCount int `json:"scrutator_count"`
	MajorityNeeded int `json:"majority_needed"`
}

// Event carries the minimum a client needs to refresh the aggregate it names.
type Event struct {
	Type          string         `json:"type"`
	MeetingID     string         `json:"meeting_id"`
	Participant   *Participant   `json:"participant,omitempty"`
	Scrutator     *Scrutator     `json:"scrutator,omitempty"`
	Status        ApprovalStatus `json:"status,omitempty"`
	Poll          *PollView      `json:"poll,omitempty"`
	PollID        string         `json:"poll_id,omitempty"`
	TotalVotes    *int64         `json:"total_votes,omitempty"`
	RequestedBy   string         `json:"requested_by,omitempty"`
	ScrutatorName string         `json:"scrutator_name,omitempty"`
	Tally         *Tally         `json:"tally,omitempty"`
	Approved      *bool          `json:"approved,omitempty"`
	NewLeader     string         `json:"new_leader,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Message       string         `json:"message,omitempty"`
	At            time.Time      `json:"at"`
}
