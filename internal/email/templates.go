package email

import (
	"fmt"
	"strings"
	"time"
)

// SecurityAlertText renders the plain-text body of a security alert email
func SecurityAlertText(title, message, severity, source string, at time.Time) string {
	return fmt.Sprintf(
		"ThreatTrace Security Alert\n\n"+
			"Title:    %s\n"+
			"Severity: %s\n"+
			"Source:   %s\n"+
			"Time:     %s\n\n"+
			"%s\n\n"+
			"This is an automated notification from the ThreatTrace security monitor.\n",
		title, strings.ToUpper(severity), source, at.UTC().Format(time.RFC3339), message,
	)
}

// SecurityAlertHTML renders the HTML body of a security alert email
func SecurityAlertHTML(title, message, severity, source string, at time.Time) string {
	color := "#c0392b"
	if severity != "critical" {
		color = "#e67e22"
	}
	return fmt.Sprintf(`<html><body style="font-family:sans-serif">
<h2 style="color:%s">ThreatTrace Security Alert</h2>
<table cellpadding="4">
<tr><td><b>Title</b></td><td>%s</td></tr>
<tr><td><b>Severity</b></td><td>%s</td></tr>
<tr><td><b>Source</b></td><td>%s</td></tr>
<tr><td><b>Time</b></td><td>%s</td></tr>
</table>
<p>%s</p>
<p style="color:#888;font-size:12px">This is an automated notification from the ThreatTrace security monitor.</p>
</body></html>`,
		color, title, strings.ToUpper(severity), source, at.UTC().Format(time.RFC3339), message,
	)
}
