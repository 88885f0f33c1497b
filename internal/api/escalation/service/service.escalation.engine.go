package escsvc

import (
	"time"

	"safety_ops/internal/delivery"
	"safety_ops/internal/escalation"
	"safety_ops/internal/global"
)

// Engine gói orchestrator cùng các store Mongo đã wire, dùng chung cho
// HTTP handler (process/simulate on-demand) và background worker.
type Engine struct {
	Orchestrator *escalation.Orchestrator
	RecordStore  *MongoRecordStore
	StateStore   *MongoStateStore
	Templates    *TemplateService
	Logs         *LogService
}

// NewEngine wire toàn bộ engine từ global config và registry collections.
// Gọi sau khi database + registry đã được init.
func NewEngine() (*Engine, error) {
	logs, err := NewLogService()
	if err != nil {
		return nil, err
	}
	recordStore, err := NewMongoRecordStore(logs)
	if err != nil {
		return nil, err
	}
	stateStore, err := NewMongoStateStore()
	if err != nil {
		return nil, err
	}
	templates, err := NewTemplateService()
	if err != nil {
		return nil, err
	}

	cfg := global.ServerConfig
	dispatcher := delivery.NewDispatcher(delivery.Config{
		SMTPHost:        cfg.SMTP_Host,
		SMTPPort:        cfg.SMTP_Port,
		SMTPUsername:    cfg.SMTP_Username,
		SMTPPassword:    cfg.SMTP_Password,
		SMTPFromName:    cfg.SMTP_FromName,
		SMTPFromEmail:   cfg.SMTP_FromEmail,
		SMSGatewayURL:   cfg.SMSGatewayURL,
		SMSGatewayToken: cfg.SMSGatewayToken,
		Timeout:         time.Duration(cfg.DeliveryTimeout) * time.Second,
	})

	orchestrator := escalation.NewOrchestrator(recordStore, dispatcher, stateStore, escalation.OrchestratorConfig{
		BaseURL:         cfg.EscalationBaseURL,
		Workers:         cfg.EscalationWorkers,
		DeliveryTimeout: time.Duration(cfg.DeliveryTimeout) * time.Second,
	})

	return &Engine{
		Orchestrator: orchestrator,
		RecordStore:  recordStore,
		StateStore:   stateStore,
		Templates:    templates,
		Logs:         logs,
	}, nil
}
