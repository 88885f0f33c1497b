// Package delivery gắn engine với các kênh gửi thông báo thật.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"safety_ops/internal/delivery/channels"
	"safety_ops/internal/escalation"
)

// Dispatcher triển khai escalation.DeliveryChannel trên SMTP + SMS gateway.
// Engine quyết định gửi kênh nào; dispatcher chỉ biết gửi thế nào.
type Dispatcher struct {
	email *channels.EmailSender
	sms   *channels.SMSGateway
}

// Config chứa thông tin kết nối tới các kênh gửi
type Config struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string

	SMSGatewayURL   string
	SMSGatewayToken string

	Timeout time.Duration
}

// NewDispatcher tạo dispatcher từ config
func NewDispatcher(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return &Dispatcher{
		email: channels.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFromName, cfg.SMTPFromEmail),
		sms:   channels.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSGatewayToken, client),
	}
}

// SendEmail gửi email cho một recipient
func (d *Dispatcher) SendEmail(ctx context.Context, recipient escalation.Recipient, subject, body string) error {
	if recipient.Email == "" {
		return fmt.Errorf("recipient '%s' không có email", recipient.Key)
	}
	return d.email.Send(ctx, recipient.Email, subject, body)
}

// SendSMS gửi SMS cho một recipient
func (d *Dispatcher) SendSMS(ctx context.Context, recipient escalation.Recipient, body string) error {
	if recipient.Phone == "" {
		return fmt.Errorf("recipient '%s' không có số điện thoại", recipient.Key)
	}
	return d.sms.Send(ctx, recipient.Phone, body)
}
