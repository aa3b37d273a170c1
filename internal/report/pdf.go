package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"votesecret/entity"
	"votesecret/lib/clock"
)

const (
	ContentTypePDF = "application/pdf"
	dateLayout     = "02/01/2006 15:04"
	timeLayout     = "15:04"
)

// PDF renders reports with the built-in core fonts.
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

func (PDF) ContentType() string {
	return ContentTypePDF
}

func (PDF) Render(r *entity.Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(r.Title, true)
	pdf.SetAuthor(r.OrganizerName, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	title := "SECRET BALLOT REPORT"
	if r.Partial {
		title = "PARTIAL SECRET BALLOT REPORT"
	}
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(30, 64, 175)
	pdf.CellFormat(0, 14, title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 7, tr(value), "", "L", false)
	}
	zone := r.OrganizerTimezone
	field("Meeting:", r.Title)
	field("Organizer:", r.OrganizerName)
	field("Meeting code:", r.MeetingCode)
	field("Started:", clock.InZone(r.CreatedAt, zone).Format(dateLayout))
	field("Generated:", clock.InZone(r.GeneratedAt, zone).Format(dateLayout))
	if zone != "" {
		field("Time zone:", zone)
	}
	pdf.Ln(6)

	if len(r.Scrutators) > 0 {
		section(pdf, "SCRUTATORS")
		header(pdf, []string{"#", "Name", "Status", "Added"}, []float64{10, 90, 40, 40})
		for i, s := range r.Scrutators {
			row(pdf, []string{
				fmt.Sprint(i + 1),
				tr(s.Name),
				string(s.Status),
				clock.InZone(s.JoinedAt, zone).Format(dateLayout),
			}, []float64{10, 90, 40, 40})
		}
		pdf.Ln(6)
	}

	section(pdf, "APPROVED PARTICIPANTS")
	if len(r.Participants) == 0 {
		note(pdf, "No approved participants")
	} else {
		header(pdf, []string{"#", "Name", "Joined"}, []float64{10, 130, 40})
		for i, p := range r.Participants {
			row(pdf, []string{
				fmt.Sprint(i + 1),
				tr(p.Name),
				clock.InZone(p.JoinedAt, zone).Format(timeLayout),
			}, []float64{10, 130, 40})
		}
		note(pdf, fmt.Sprintf("Total approved participants: %d", len(r.Participants)))
	}
	pdf.Ln(6)

	section(pdf, "POLL RESULTS")
	if len(r.Polls) == 0 {
		note(pdf, "No polls were created in this meeting")
	}
	for i, p := range r.Polls {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 7, tr(fmt.Sprintf("Poll %d: %s", i+1, p.Question)), "", "L", false)
		if p.TotalVotes == 0 {
			note(pdf, "No votes recorded for this poll")
			pdf.Ln(4)
			continue
		}
		widths := []float64{110, 35, 35}
		header(pdf, []string{"Option", "Votes", "Percentage"}, widths)
		for _, o := range p.Options {
			row(pdf, []string{tr(o.Text), fmt.Sprint(o.Votes), fmt.Sprintf("%.1f%%", o.Percentage)}, widths)
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(229, 231, 235)
		pdf.CellFormat(widths[0], 7, "TOTAL", "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprint(p.TotalVotes), "1", 0, "C", true, 0, "")
		pdf.CellFormat(widths[2], 7, "100.0%", "1", 1, "C", true, 0, "")
		switch {
		case p.Winner != "":
			note(pdf, tr("Winner: "+p.Winner))
		case p.Tie:
			note(pdf, "Result: tie, no winner")
		default:
			note(pdf, "Poll was not closed")
		}
		pdf.Ln(4)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(128, 128, 128)
	if r.Partial {
		pdf.MultiCell(0, 5, "Partial report generated while the meeting is still open.", "", "C", false)
	} else {
		pdf.MultiCell(0, 5, "All data of this meeting was deleted after this report was generated.", "", "C", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(55, 65, 81)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

func header(pdf *fpdf.Fpdf, cols []string, widths []float64) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(243, 244, 246)
	for i, c := range cols {
		pdf.CellFormat(widths[i], 7, c, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func row(pdf *fpdf.Fpdf, cols []string, widths []float64) {
	pdf.SetFont("Helvetica", "", 10)
	for i, c := range cols {
		pdf.CellFormat(widths[i], 7, c, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func note(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 7, text, "", 1, "L", false, 0, "")
}
