package entity

import (
	"time"

	"votesecret/lib/names"
)

type ReportOption struct {
	Text       string  `json:"text" bson:"text"`
	Votes      int64   `json:"votes" bson:"votes"`
	Percentage float64 `json:"percentage" bson:"percentage"`
}

type ReportPoll struct {
	Question   string         `json:"question" bson:"question"`
	Status     PollStatus     `json:"status" bson:"status"`
	Options    []ReportOption `json:"options" bson:"options"`
	TotalVotes int64          `json:"total_votes" bson:"total_votes"`
	Winner     string         `json:"winner,omitempty" bson:"winner,omitempty"`
	Tie        bool           `json:"tie" bson:"tie"`
}

type ReportPerson struct {
	Name     string         `json:"name" bson:"name"`
	Status   ApprovalStatus `json:"status" bson:"status"`
	JoinedAt time.Time      `json:"joined_at" bson:"joined_at"`
}

// Report is the aggregate that survives the purge.
type Report struct {
	Title             string         `json:"title" bson:"title"`
	OrganizerName     string         `json:"organizer_name" bson:"organizer_name"`
	OrganizerTimezone string         `json:"organizer_timezone,omitempty" bson:"organizer_timezone,omitempty"`
	MeetingCode       string         `json:"meeting_code" bson:"meeting_code"`
	CreatedAt         time.Time      `json:"created_at" bson:"created_at"`
	GeneratedAt       time.Time      `json:"generated_at" bson:"generated_at"`
	Participants      []ReportPerson `json:"participants" bson:"participants"`
	Scrutators        []ReportPerson `json:"scrutators" bson:"scrutators"`
	Polls             []ReportPoll   `json:"polls" bson:"polls"`
	Partial           bool           `json:"partial" bson:"partial"`
}

func NewReportPoll(p *Poll) ReportPoll {
	total := p.TotalVotes()
	rp := ReportPoll{
		Question:   p.Question,
		Status:     p.Status,
		TotalVotes: total,
	}
	for _, o := range p.Options {
		rp.Options = append(rp.Options, ReportOption{
			Text:       o.Text,
			Votes:      o.Votes,
			Percentage: Percentage(o.Votes, total),
		})
	}
	if p.Status == PollClosed {
		if w := Winner(p.Options); w != nil {
			rp.Winner = w.Text
		} else {
			rp.Tie = len(p.Options) > 0
		}
	}
	return rp
}

// ReportDocument is the rendered report kept for a single download after the purge.
type ReportDocument struct {
	MeetingID   string    `json:"meeting_id" bson:"_id"`
	FileName    string    `json:"file_name" bson:"file_name"`
	ContentType string    `json:"content_type" bson:"content_type"`
	Content     []byte    `json:"-" bson:"content"`
	Data        *Report   `json:"data" bson:"data"`
	Recipients  []string  `json:"-" bson:"recipients"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" bson:"expires_at"`
}

// IsRecipient reports whether name may download the document.
func (d *ReportDocument) IsRecipient(name string) bool {
	key := names.Key(name)
	if key == "" {
		return false
	}
	for _, r := range d.Recipients {
		if r == key {
			return true
		}
	}
	return false
}
