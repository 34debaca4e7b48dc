package email

import "context"

// Sender is the interface alert email providers implement. The dispatcher
// only depends on this, so the Gmail implementation can be swapped for
// SMTP/SES without touching the alert pipeline.
type Sender interface {
	// Send sends an email to the specified recipient.
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text fallback body
}
