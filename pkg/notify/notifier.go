package notify

import (
	"context"

	"github.com/carelink/platform/pkg/common/kafka"
	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/common/models"
)

const EventAssignmentCreated = "assignment.created"

// KafkaNotifier publishes assignment events to the notification topic. The
// notify worker consumes them and handles delivery.
type KafkaNotifier struct {
	producer *kafka.Producer
}

func NewKafkaNotifier(producer *kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) AssignmentCreated(ctx context.Context, assignment models.Assignment, doctorEmail string) error {
	return n.producer.PublishEvent(ctx, EventAssignmentCreated, "assignments", map[string]interface{}{
		"assignment_id": assignment.ID.String(),
		"doctor_id":     assignment.DoctorID.String(),
		"patient_id":    assignment.PatientID.String(),
		"doctor_email":  doctorEmail,
		"doctor_name":   assignment.DoctorName,
		"patient_name":  assignment.PatientName,
		"assigned_at":   assignment.AssignedAt,
	})
}

// LogNotifier stands in when kafka is not configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) AssignmentCreated(ctx context.Context, assignment models.Assignment, doctorEmail string) error {
	logger.Log.WithFields(map[string]interface{}{
		"assignment_id": assignment.ID,
		"doctor_email":  doctorEmail,
		"patient_name":  assignment.PatientName,
	}).Info("assignment notification (log only)")
	return nil
}
