package entity

import (
	"math"
	"time"
)

type PollStatus string

const (
	PollDraft  PollStatus = "draft"
	PollActive PollStatus = "active"
	PollClosed PollStatus = "closed"
)

type Option struct {
	ID    string `json:"id" bson:"id"`
	Text  string `json:"text" bson:"text"`
	Votes int64  `json:"votes" bson:"votes"`
}

type Poll struct {
	ID                  string     `json:"id" bson:"_id"`
	MeetingID           string     `json:"meeting_id" bson:"meeting_id"`
	Question            string     `json:"question" bson:"question"`
	Options             []Option   `json:"options" bson:"options"`
	Status              PollStatus `json:"status" bson:"status"`
	TimerDuration       *int       `json:"timer_duration,omitempty" bson:"timer_duration,omitempty"`
	ShowResultsRealTime bool       `json:"show_results_real_time" bson:"show_results_real_time"`
	TimerStartedAt      *time.Time `json:"timer_started_at,omitempty" bson:"timer_started_at,omitempty"`
	ClosesAt            *time.Time `json:"closes_at,omitempty" bson:"closes_at,omitempty"`
	ClosedAt            *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at" bson:"created_at"`
}

func (p *Poll) Option(id string) *Option {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}

func (p *Poll) TotalVotes() int64 {
	var total int64
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// Timer returns the configured duration, zero when the poll is untimed.
func (p *Poll) Timer() time.Duration {
	if p.TimerDuration == nil || *p.TimerDuration <= 0 {
		return 0
	}
	return time.Duration(*p.TimerDuration) * time.Second
}

// Winner is defined only for closed polls.
func (p *Poll) Winner() *Option {
	if p.Status != PollClosed {
		return nil
	}
	return Winner(p.Options)
}

// Winner returns the single option holding the highest count, nil on a tie
// (including all-zero polls with more than one option).
func Winner(options []Option) *Option {
	if len(options) == 0 {
		return nil
	}
	var max int64 = math.MinInt64
	for _, o := range options {
		if o.Votes > max {
			max = o.Votes
		}
	}
	var candidates []Option
	for _, o := range options {
		if o.Votes == max {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) != 1 {
		return nil
	}
	w := candidates[0]
	return &w
}

// PollView is a poll as one audience sees it.
type PollView struct {
	Poll
	TotalVotesCount int64   `json:"total_votes_count"`
	Winner          *Option `json:"winner,omitempty"`
	Tie             bool    `json:"tie,omitempty"`
}

// OrganizerView always carries live counts.
func (p *Poll) OrganizerView() PollView {
	v := PollView{Poll: p.clone(), TotalVotesCount: p.TotalVotes()}
	v.fillWinner()
	return v
}

// ParticipantView hides per-option counts until the poll is closed.
func (p *Poll) ParticipantView() PollView {
	v := PollView{Poll: p.clone(), TotalVotesCount: p.TotalVotes()}
	if p.Status != PollClosed {
		for i := range v.Options {
			v.Options[i].Votes = 0
		}
		return v
	}
	v.fillWinner()
	return v
}

func (v *PollView) fillWinner() {
	if v.Status != PollClosed {
		return
	}
	v.Winner = Winner(v.Options)
	v.Tie = v.Winner == nil && len(v.Options) > 0
}

func (p *Poll) clone() Poll {
	c := *p
	c.Options = make([]Option, len(p.Options))
	copy(c.Options, p.Options)
	return c
}

type ResultLine struct {
	Option     string  `json:"option"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type PollResults struct {
	Question   string       `json:"question"`
	Status     PollStatus   `json:"status"`
	Results    []ResultLine `json:"results"`
	TotalVotes int64        `json:"total_votes"`
	Winner     string       `json:"winner,omitempty"`
}

func (p *Poll) Results() *PollResults {
	total := p.TotalVotes()
	res := &PollResults{
		Question:   p.Question,
		Status:     p.Status,
		TotalVotes: total,
	}
	for _, o := range p.Options {
		res.Results = append(res.Results, ResultLine{
			Option:     o.Text,
			Votes:      o.Votes,
			Percentage: Percentage(o.Votes, total),
		})
	}
	if w := p.Winner(); w != nil {
		res.Winner = w.Text
	}
	return res
}

// Percentage rounds to one decimal, 0 when nobody voted.
func Percentage(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(votes)*1000/float64(total)) / 10
}
