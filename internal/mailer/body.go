package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/justlegal/servetrack/internal/domain"
)

// serveEmailTemplate renders the notification body. Inline styles keep the
// layout intact across email clients.
var serveEmailTemplate = template.Must(template.New("serve_email").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px;">
  <h2 style="color: #1a3e5c;">Serve Attempt Record</h2>
  <table style="border-collapse: collapse; width: 100%;">
    <tr><td style="padding: 6px 12px 6px 0; font-weight: bold;">Client</td><td>{{.ClientName}}</td></tr>
    <tr><td style="padding: 6px 12px 6px 0; font-weight: bold;">Case</td><td>{{.CaseName}}</td></tr>
    <tr><td style="padding: 6px 12px 6px 0; font-weight: bold;">Attempt</td><td>#{{.AttemptNumber}}</td></tr>
    <tr><td style="padding: 6px 12px 6px 0; font-weight: bold;">Date</td><td>{{.When}}</td></tr>
    <tr><td style="padding: 6px 12px 6px 0; font-weight: bold;">Address</td><td>{{.Address}}</td></tr>
    {{if .MapsURL}}<tr><td style="padding: 6px 12px 6px 0; font-weight: bold;">Location</td><td><a href="{{.MapsURL}}">{{.Coordinates}}</a></td></tr>{{end}}
  </table>
  {{if .Notes}}<h3 style="color: #1a3e5c;">Notes</h3><p>{{.Notes}}</p>{{end}}
</div>`))

// BuildServeEmailBody renders the HTML notification body for a serve
// attempt. Coordinates at the zero sentinel get no map link.
func BuildServeEmailBody(a *domain.ServeAttempt) string {
	data := struct {
		ClientName    string
		CaseName      string
		AttemptNumber int
		When          string
		Address       string
		Coordinates   string
		MapsURL       string
		Notes         string
	}{
		ClientName:    a.ClientName,
		CaseName:      a.CaseName,
		AttemptNumber: a.AttemptNumber,
		When:          a.Timestamp.Format(time.RFC1123),
		Address:       a.Address,
		Coordinates:   a.Coordinates,
		Notes:         a.Notes,
	}
	if a.Coordinates != "" && a.Coordinates != domain.ZeroCoordinates {
		data.MapsURL = "https://www.google.com/maps?q=" + url.QueryEscape(a.Coordinates)
	}

	var buf bytes.Buffer
	if err := serveEmailTemplate.Execute(&buf, data); err != nil {
		// The template is static; execution can only fail on a broken
		// writer. Fall back to a minimal body rather than dropping the send.
		return fmt.Sprintf("<p>Serve attempt recorded for %s (%s).</p>", a.ClientName, a.CaseName)
	}
	return buf.String()
}

// CreateSubject builds the subject line for a new serve attempt.
func CreateSubject(a *domain.ServeAttempt) string {
	statusText := "Failed"
	if a.Status == domain.ServeStatusCompleted {
		statusText = "Successful"
	}
	return fmt.Sprintf("New Serve Attempt %s - %s", statusText, a.CaseName)
}

// UpdateSubject builds the subject line for an updated serve attempt.
func UpdateSubject(a *domain.ServeAttempt) string {
	return fmt.Sprintf("Serve Attempt Updated - %s", a.CaseName)
}
