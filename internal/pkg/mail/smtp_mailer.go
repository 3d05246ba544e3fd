package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/gemfault/GemFlow/internal/pkg/env"
)

// SMTPMailer sends emails via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendSecurityAlertMail notifies the configured operator address about a
// security alert raised by the pipeline. Best effort; failures are logged by
// SendMail and do not affect event processing.
func SendSecurityAlertMail(fromAddress, subject string) error {
	operator := env.GetEnv("ALERT_EMAIL", "")
	if operator == "" {
		return nil
	}
	body := fmt.Sprintf(
		"<p>A destructive instruction was detected in an inbound email and was <b>not</b> acted on.</p>"+
			"<p>Sender: %s<br>Subject: %s</p>"+
			"<p>Review the processing ledger for details.</p>",
		fromAddress, subject,
	)
	return SendMail(operator, "[GemFlow] Security alert: "+subject, body)
}
