package queue

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
)

// ScanPublisher forwards committed check-ins to the audit worker.
type ScanPublisher struct {
	q Queue
}

var _ attendance.AuditSink = (*ScanPublisher)(nil)

func NewScanPublisher(q Queue) *ScanPublisher {
	return &ScanPublisher{q: q}
}

// PublishScan enqueues evt, assigning it an id so redelivery stays idempotent.
func (p *ScanPublisher) PublishScan(ctx context.Context, evt attendance.ScanEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, Message{Type: TypeScan, Body: body})
}

// DecodeScan reads the scan event carried by msg.
func DecodeScan(msg Message) (attendance.ScanEvent, error) {
	var evt attendance.ScanEvent
	err := json.Unmarshal(msg.Body, &evt)
	return evt, err
}
