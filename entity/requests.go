package entity

import (
	"net/http"
	"strings"
	"time"

	"votesecret/lib/names"
	"votesecret/lib/validate"
)

// Input limits.
const (
	MaxTitleLength  = 200
	MaxNameLength   = 100
	MaxOptionLength = 200
	MinPollOptions  = 2
	MaxPollOptions  = 20
	MaxTimerSeconds = 24 * 60 * 60
)

func bindError(err error) error {
	if err == nil {
		return nil
	}
	return Validation("%v", err)
}

type CreateMeetingRequest struct {
	Title             string `json:"title" validate:"required,max=200"`
	OrganizerName     string `json:"organizer_name" validate:"required,max=100"`
	OrganizerTimezone string `json:"organizer_timezone,omitempty" validate:"omitempty,max=64"`
}

func (r *CreateMeetingRequest) Bind(_ *http.Request) error {
	r.Title = strings.TrimSpace(r.Title)
	r.OrganizerName = names.Clean(r.OrganizerName)
	r.OrganizerTimezone = strings.TrimSpace(r.OrganizerTimezone)
	if r.OrganizerTimezone != "" {
		if _, err := time.LoadLocation(r.OrganizerTimezone); err != nil {
			return Validation("organizer_timezone: unknown zone %q", r.OrganizerTimezone)
		}
	}
	return bindError(validate.Struct(r))
}

type JoinRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	MeetingCode string `json:"meeting_code" validate:"required,max=32"`
}

func (r *JoinRequest) Bind(_ *http.Request) error {
	r.Name = names.Clean(r.Name)
	r.MeetingCode = strings.TrimSpace(r.MeetingCode)
	return bindError(validate.Struct(r))
}

// ApprovalRequest is shared by participant and scrutator approval.
type ApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

func (r *ApprovalRequest) Bind(_ *http.Request) error {
	return bindError(validate.Struct(r))
}

type CreatePollRequest struct {
	Question            string   `json:"question" validate:"required,max=500"`
	Options             []string `json:"options" validate:"required,min=2,max=20,dive,max=200"`
	TimerDuration       *int     `json:"timer_duration,omitempty" validate:"omitempty,min=1,max=86400"`
	ShowResultsRealTime bool     `json:"show_results_real_time"`
}

func (r *CreatePollRequest) Bind(_ *http.Request) error {
	r.Question = strings.TrimSpace(r.Question)
	for i := range r.Options {
		r.Options[i] = strings.TrimSpace(r.Options[i])
	}
	return bindError(validate.Struct(r))
}

type VoteRequest struct {
	PollID   string `json:"poll_id" validate:"required"`
	OptionID string `json:"option_id" validate:"required"`
}

func (r *VoteRequest) Bind(_ *http.Request) error {
	return bindError(validate.Struct(r))
}

type ScrutatorsRequest struct {
	Names []string `json:"names" validate:"required,min=1,max=50,dive,max=100"`
}

func (r *ScrutatorsRequest) Bind(_ *http.Request) error {
	for i := range r.Names {
		r.Names[i] = names.Clean(r.Names[i])
	}
	return bindError(validate.Struct(r))
}

type ScrutatorJoinRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	ScrutatorCode string `json:"scrutator_code" validate:"required,max=32"`
}

func (r *ScrutatorJoinRequest) Bind(_ *http.Request) error {
	r.Name = names.Clean(r.Name)
	r.ScrutatorCode = strings.TrimSpace(r.ScrutatorCode)
	return bindError(validate.Struct(r))
}

type ReportRequestBody struct {
	RequestedBy string `json:"requested_by" validate:"required,max=100"`
}

func (r *ReportRequestBody) Bind(_ *http.Request) error {
	r.RequestedBy = names.Clean(r.RequestedBy)
	return bindError(validate.Struct(r))
}

type ScrutatorVoteRequest struct {
	ScrutatorName string `json:"scrutator_name" validate:"required,max=100"`
	Approved      *bool  `json:"approved" validate:"required"`
}

func (r *ScrutatorVoteRequest) Bind(_ *http.Request) error {
	r.ScrutatorName = names.Clean(r.ScrutatorName)
	return bindError(validate.Struct(r))
}

type HeartbeatRequest struct {
	OrganizerName string `json:"organizer_name" validate:"required,max=100"`
}

func (r *HeartbeatRequest) Bind(_ *http.Request) error {
	r.OrganizerName = names.Clean(r.OrganizerName)
	return bindError(validate.Struct(r))
}
