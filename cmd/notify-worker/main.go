package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carelink/platform/pkg/common/config"
	"github.com/carelink/platform/pkg/common/kafka"
	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/carelink/platform/pkg/notify"
)

func main() {
	logger.Init()
	cfg := config.Load()

	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	} else {
		logger.Log.Warn("SMTP_HOST not set, emails will be logged only")
		mailer = notify.LogMailer{}
	}

	consumer := kafka.NewConsumer(cfg.NotificationTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("Shutting down notify worker...")
		cancel()
	}()

	logger.Log.WithField("topic", cfg.NotificationTopic).Info("notify worker consuming")
	err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
		if event.Type != notify.EventAssignmentCreated {
			return nil
		}
		return handleAssignmentCreated(mailer, event)
	})
	if err != nil && err != context.Canceled {
		logger.Log.WithError(err).Fatal("consumer stopped")
	}
	logger.Log.Info("notify worker stopped")
}

func handleAssignmentCreated(mailer notify.Mailer, event models.Event) error {
	doctorEmail, _ := event.Data["doctor_email"].(string)
	if doctorEmail == "" {
		logger.Log.WithField("event_id", event.ID).Warn("assignment event missing doctor email, skipping")
		return nil
	}
	patientName, _ := event.Data["patient_name"].(string)

	subject, body := notify.AssignmentEmail(patientName)
	if err := mailer.Send(doctorEmail, subject, body); err != nil {
		return fmt.Errorf("sending assignment email: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id":     event.ID,
		"doctor_email": doctorEmail,
	}).Info("assignment notification delivered")
	return nil
}
