package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"safety_ops/internal/logger"
)

// SMSGateway gửi SMS qua HTTP gateway nội bộ
type SMSGateway struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewSMSGateway tạo SMS gateway client
func NewSMSGateway(url, token string, client *http.Client) *SMSGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSGateway{URL: url, Token: token, Client: client}
}

// Send gửi một SMS qua gateway. Body đã được validate độ dài từ lúc lưu
// template nên không cắt ở đây.
func (g *SMSGateway) Send(ctx context.Context, phone, body string) error {
	log := logger.GetAppLogger()
	log.WithFields(map[string]interface{}{
		"phone": phone,
	}).Info("📱 [SMS] Bắt đầu gửi SMS")

	payload := map[string]interface{}{
		"phone":   phone,
		"message": body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"phone": phone,
			"url":   g.URL,
		}).Error("📱 [SMS] Lỗi khi gọi SMS gateway")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Đọc response body để xem lỗi chi tiết
		bodyBytes, _ := io.ReadAll(resp.Body)
		log.WithFields(map[string]interface{}{
			"phone":      phone,
			"statusCode": resp.StatusCode,
			"response":   string(bodyBytes),
		}).Error("📱 [SMS] SMS gateway trả về lỗi")
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	log.WithFields(map[string]interface{}{
		"phone": phone,
	}).Info("📱 [SMS] Gửi SMS thành công")
	return nil
}
