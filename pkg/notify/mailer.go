package notify

import (
	"fmt"
	"net/smtp"

	"github.com/carelink/platform/pkg/common/logger"
)

// Mailer delivers the "new patient assigned" email. Used by the notify
// worker, never by the request path.
type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	addr string
	from string
}

func NewSMTPMailer(host, port, from string) *SMTPMailer {
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.from, to, subject, body)
	return smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg))
}

// LogMailer records delivery instead of sending, for environments without
// an SMTP relay.
type LogMailer struct{}

func (LogMailer) Send(to, subject, body string) error {
	logger.Log.WithFields(map[string]interface{}{
		"to":      to,
		"subject": subject,
	}).Info("email delivery (log only)")
	return nil
}

// AssignmentEmail renders the notification sent to the doctor.
func AssignmentEmail(patientName string) (subject, body string) {
	subject = "New patient assigned"
	body = fmt.Sprintf(
		"Patient %s has been assigned to you. Please log in to the application for more information.",
		patientName,
	)
	return subject, body
}
