package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Configuration chứa thông tin tĩnh cần thiết để chạy ứng dụng.
// Bao gồm kết nối cơ sở dữ liệu, cấu hình server và cấu hình engine escalation.
type Configuration struct {
	Address               string `env:"ADDRESS" envDefault:":8080"`      // Địa chỉ server
	MongoDB_ConnectionURI string `env:"MONGODB_CONNECTION_URI,required"` // URL kết nối cơ sở dữ liệu
	MongoDB_DBName        string `env:"MONGODB_DBNAME,required"`         // Tên cơ sở dữ liệu
	CORS_Origins          string `env:"CORS_ORIGINS" envDefault:"*"`     // Các origins được phép (phân cách bởi dấu phẩy, * = tất cả)
	RateLimit_Max         int    `env:"RATE_LIMIT_MAX" envDefault:"100"` // Số request tối đa trong window (0 = disable rate limit)
	RateLimit_Window      int    `env:"RATE_LIMIT_WINDOW" envDefault:"60"` // Thời gian window (giây)

	// Escalation Engine Configuration
	EscalationInterval  int    `env:"ESCALATION_INTERVAL_MINUTES" envDefault:"5"` // Chu kỳ chạy processEscalations (phút)
	EscalationWorkers   int    `env:"ESCALATION_WORKERS" envDefault:"8"`          // Số worker xử lý song song các (template, record) pairs
	EscalationBaseURL   string `env:"ESCALATION_BASE_URL" envDefault:"http://localhost:3000"` // Base URL để build action links trong notification
	CleanupInterval     int    `env:"CLEANUP_INTERVAL_HOURS" envDefault:"6"`      // Chu kỳ dọn instance hết hạn suppression window (giờ)

	// Delivery Channel Configuration (email SMTP + SMS gateway HTTP API)
	SMTP_Host       string `env:"SMTP_HOST"`                                // SMTP server gửi email
	SMTP_Port       int    `env:"SMTP_PORT" envDefault:"587"`               // Cổng SMTP
	SMTP_Username   string `env:"SMTP_USERNAME"`                            // Tài khoản SMTP
	SMTP_Password   string `env:"SMTP_PASSWORD"`                            // Mật khẩu SMTP
	SMTP_FromName   string `env:"SMTP_FROM_NAME" envDefault:"Safety Ops"`   // Tên người gửi
	SMTP_FromEmail  string `env:"SMTP_FROM_EMAIL"`                          // Địa chỉ người gửi
	SMSGatewayURL   string `env:"SMS_GATEWAY_URL"`                          // Endpoint gửi SMS
	SMSGatewayToken string `env:"SMS_GATEWAY_TOKEN"`                        // API token cho SMS gateway
	DeliveryTimeout int    `env:"DELIVERY_TIMEOUT_SECONDS" envDefault:"10"` // Timeout cho mỗi lần gọi delivery channel (giây)
}

// getEnvPath trả về đường dẫn đến file env dựa trên môi trường
func getEnvPath() string {
	// Mặc định sử dụng môi trường development
	environment := os.Getenv("GO_ENV")
	if environment == "" {
		environment = "development"
	}

	currentDir, err := os.Getwd()
	if err != nil {
		// Dùng fmt.Printf vì logger có thể chưa được init ở đây
		fmt.Printf("Không thể lấy được thư mục hiện tại: %v\n", err)
		return ""
	}

	// Tìm thư mục config/env bằng cách đi lên từ working directory
	for {
		envDir := filepath.Join(currentDir, "config", "env")
		if _, err := os.Stat(envDir); err == nil {
			return filepath.Join(envDir, fmt.Sprintf("%s.env", environment))
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return ""
		}
		currentDir = parentDir
	}
}

// NewConfig đọc dữ liệu cấu hình từ file env và environment variables
func NewConfig() *Configuration {
	envPath := getEnvPath()
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			// File env không bắt buộc nếu biến môi trường đã được set sẵn
			fmt.Printf("Không thể load file env tại %s: %v\n", envPath, err)
		}
	}

	cfg := Configuration{}
	if err := env.Parse(&cfg); err != nil {
		fmt.Printf("Lỗi khi parse config: %+v\n", err)
		return nil
	}

	return &cfg
}
