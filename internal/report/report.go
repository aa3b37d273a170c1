// Package report assembles the final meeting report and renders it as PDF.
package report

import (
	"strings"
	"time"
	"unicode"

	"votesecret/entity"
)

// Build collects the report data. Only approved participants are listed;
// scrutators appear with whatever status they reached.
func Build(meeting *entity.Meeting, participants []*entity.Participant, scrutators []*entity.Scrutator, polls []*entity.Poll, at time.Time, partial bool) *entity.Report {
	r := &entity.Report{
		Title:             meeting.Title,
		OrganizerName:     meeting.OrganizerName,
		OrganizerTimezone: meeting.OrganizerTimezone,
		MeetingCode:       meeting.MeetingCode,
		CreatedAt:         meeting.CreatedAt,
		GeneratedAt:       at,
		Partial:           partial,
	}
	for _, p := range participants {
		if !p.IsApproved() {
			continue
		}
		r.Participants = append(r.Participants, entity.ReportPerson{
			Name:     p.Name,
			Status:   p.Status,
			JoinedAt: p.JoinedAt,
		})
	}
	for _, s := range scrutators {
		r.Scrutators = append(r.Scrutators, entity.ReportPerson{
			Name:     s.Name,
			Status:   s.Status,
			JoinedAt: s.AddedAt,
		})
	}
	for _, p := range polls {
		r.Polls = append(r.Polls, entity.NewReportPoll(p))
	}
	return r
}

// FileName is safe for a Content-Disposition header.
func FileName(r *entity.Report) string {
	safe := strings.Map(func(c rune) rune {
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c) || c == '-' || c == '_') {
			return c
		}
		if c == ' ' {
			return '_'
		}
		return -1
	}, r.Title)
	safe = strings.Trim(safe, "_")
	if safe == "" {
		safe = "meeting"
	}
	prefix := "Report"
	if r.Partial {
		prefix = "Partial_Report"
	}
	return prefix + "_" + safe + "_" + r.MeetingCode + ".pdf"
}
