package entity

// OrganizerView is the dashboard read model: everyone who asked to join and every poll with live counts.
type OrganizerView struct {
	Meeting      *Meeting       `json:"meeting"`
	Participants []*Participant `json:"participants"`
	Polls        []PollView     `json:"polls"`
	Scrutators   []*Scrutator   `json:"scrutators"`
}

type ParticipantStatus struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    ApprovalStatus `json:"status"`
	MeetingID string         `json:"meeting_id"`
}

type ScrutatorList struct {
	ScrutatorCode string       `json:"scrutator_code"`
	Scrutators    []*Scrutator `json:"scrutators"`
}

type ReportRequestResult struct {
	DirectGeneration bool   `json:"direct_generation"`
	RequestID        string `json:"request_id,omitempty"`
	ScrutatorCount   int    `json:"scrutator_count,omitempty"`
	MajorityNeeded   int    `json:"majority_needed,omitempty"`
	Message          string `json:"message"`
}

type ScrutatorVoteResult struct {
	Decision       Decision `json:"decision"`
	YesVotes       int      `json:"yes_votes"`
	NoVotes        int      `json:"no_votes"`
	VotesCast      int      `json:"votes_cast"`
	ScrutatorCount int      `json:"scrutator_count"`
	MajorityNeeded int      `json:"majority_needed"`
	Message        string   `json:"message"`
}
