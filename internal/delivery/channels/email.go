// Package channels chứa các kênh gửi thông báo cụ thể (email SMTP, SMS gateway)
package channels

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"safety_ops/internal/logger"
)

// EmailSender gửi email qua SMTP
type EmailSender struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// NewEmailSender tạo email sender với thông tin SMTP
func NewEmailSender(host string, port int, username, password, fromName, fromEmail string) *EmailSender {
	if port <= 0 {
		port = 587
	}
	return &EmailSender{
		Host:      host,
		Port:      port,
		Username:  username,
		Password:  password,
		FromName:  fromName,
		FromEmail: fromEmail,
	}
}

// Send gửi một email. Body là plain text; action link đã được nối vào body
// từ phía engine nên ở đây chỉ wrap thành HTML đơn giản.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	log := logger.GetAppLogger()
	log.WithFields(map[string]interface{}{
		"to":      to,
		"subject": subject,
	}).Info("📧 [EMAIL] Bắt đầu gửi email")

	// gomail không nhận context: check cancel trước khi dial để không gửi
	// sau khi orchestrator đã bỏ cuộc
	if err := ctx.Err(); err != nil {
		return err
	}

	htmlBody := "<p>" + strings.ReplaceAll(body, "\n", "<br>") + "</p>"

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", s.FromName, s.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"to":   to,
			"host": s.Host,
		}).Error("📧 [EMAIL] Lỗi khi gửi email qua SMTP")
		return err
	}

	log.WithFields(map[string]interface{}{
		"to": to,
	}).Info("📧 [EMAIL] Gửi email thành công")
	return nil
}
