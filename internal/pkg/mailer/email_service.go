package mailer

import (
	"fmt"
	"html"

	"ai-chatflow-be/internal/pkg/logger"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendWelcome(toEmail, fullName string) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
	clientURL   string
	logger      logger.ILogger
}

func NewEmailService(host string, port int, username, password, senderName, clientURL string, log logger.ILogger) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: username,
		senderName:  senderName,
		clientURL:   clientURL,
		logger:      log,
	}
}

func (s *emailService) SendWelcome(toEmail, fullName string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Welcome to ChatFlow")

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Welcome to ChatFlow, %s!</h2>
			<p>Your account is ready. A first conversation is waiting for you.</p>
			<a href="%s" style="background-color: #007BFF; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;">Start chatting</a>
		</div>
	`, html.EscapeString(fullName), s.clientURL)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("MAILER", "Failed to send welcome mail", map[string]interface{}{"to": toEmail, "error": err.Error()})
		return err
	}

	s.logger.Info("MAILER", "Welcome mail sent", map[string]interface{}{"to": toEmail})
	return nil
}

// NopEmailService is used when SMTP isn't configured.
type NopEmailService struct{}

func (NopEmailService) SendWelcome(string, string) error { return nil }
