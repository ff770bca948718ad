package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/frahmantamala/pentest-portal/internal/finding"
	"github.com/frahmantamala/pentest-portal/internal/report"
)

var severityColors = map[string][3]int{
	"critical": {185, 28, 28},
	"high":     {234, 88, 12},
	"medium":   {202, 138, 4},
	"low":      {37, 99, 235},
	"info":     {100, 116, 139},
}

type renderer struct {
	pdf        *fpdf.Fpdf
	tr         func(string) string
	generated  time.Time
	noCompress bool
}

func newRenderer(generated time.Time, noCompress bool) *renderer {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetCompression(!noCompress)
	return &renderer{
		pdf:       pdf,
		tr:        pdf.UnicodeTranslatorFromDescriptor(""),
		generated: generated,
	}
}

// Render writes the report with its findings, most severe first.
func (r *renderer) Render(w io.Writer, rep *report.Report, findings []*finding.Finding) error {
	pdf := r.pdf
	pdf.SetTitle(r.tr(rep.Title), false)
	pdf.SetCreator("pentest-portal", false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 8, fmt.Sprintf("Confidential - page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	r.cover(rep, findings)
	r.summaryTable(findings)

	for i, f := range findings {
		r.findingDetail(i+1, f)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func (r *renderer) cover(rep *report.Report, findings []*finding.Finding) {
	pdf := r.pdf
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(30, 41, 59)
	pdf.MultiCell(0, 10, r.tr(rep.Title), "", "L", false)
	pdf.Ln(2)

	client := "-"
	if rep.Client != nil {
		client = rep.Client.Name
	}
	due := "-"
	if rep.DueDate != nil {
		due = rep.DueDate.Format("2006-01-02")
	}

	rows := [][2]string{
		{"Client", client},
		{"Assessment type", rep.AssessmentType},
		{"Status", humanize(rep.Status)},
		{"Overall severity", humanize(rep.Severity)},
		{"Due date", due},
		{"Findings", fmt.Sprintf("%d", len(findings))},
		{"Generated", r.generated.UTC().Format("2006-01-02 15:04 MST")},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(80, 80, 80)
		pdf.CellFormat(45, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(30, 30, 30)
		pdf.CellFormat(0, 7, r.tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	r.sectionHeader("Executive Summary")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(50, 50, 50)
	summary := strings.TrimSpace(rep.ExecutiveSummary)
	if summary == "" {
		summary = "No executive summary provided."
	}
	pdf.MultiCell(0, 5, r.tr(summary), "", "L", false)
	pdf.Ln(4)
}

func (r *renderer) summaryTable(findings []*finding.Finding) {
	pdf := r.pdf
	r.sectionHeader("Findings Overview")
	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 7, "No findings recorded.", "", 1, "L", false, 0, "")
		return
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(10, 8, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(95, 8, "Title", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Severity", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 8, "CVSS", "1", 0, "C", true, 0, "")
	pdf.CellFormat(0, 8, "Status", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for i, f := range findings {
		pdf.SetTextColor(40, 40, 40)
		pdf.CellFormat(10, 7, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(95, 7, r.tr(truncate(f.Title, 60)), "1", 0, "L", false, 0, "")
		c := colorFor(f.Severity)
		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(25, 7, humanize(f.Severity), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(40, 40, 40)
		pdf.CellFormat(20, 7, cvss(f), "1", 0, "C", false, 0, "")
		pdf.CellFormat(0, 7, humanize(f.Status), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
}

func (r *renderer) findingDetail(n int, f *finding.Finding) {
	pdf := r.pdf
	pdf.AddPage()
	c := colorFor(f.Severity)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(c[0], c[1], c[2])
	pdf.MultiCell(0, 8, r.tr(fmt.Sprintf("%d. %s", n, f.Title)), "", "L", false)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, fmt.Sprintf("Severity: %s   CVSS: %s   Status: %s", humanize(f.Severity), cvss(f), humanize(f.Status)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	for _, section := range [][2]string{
		{"Description", f.Description},
		{"Impact", f.Impact},
		{"Recommendation", f.Recommendation},
	} {
		if strings.TrimSpace(section[1]) == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(30, 41, 59)
		pdf.CellFormat(0, 7, section[0], "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(50, 50, 50)
		pdf.MultiCell(0, 5, r.tr(section[1]), "", "L", false)
		pdf.Ln(3)
	}
}

func (r *renderer) sectionHeader(title string) {
	pdf := r.pdf
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(30, 41, 59)
	pdf.CellFormat(0, 9, title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func colorFor(severity string) [3]int {
	if c, ok := severityColors[severity]; ok {
		return c
	}
	return [3]int{100, 100, 100}
}

func cvss(f *finding.Finding) string {
	if f.CVSSScore == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *f.CVSSScore)
}

func humanize(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
