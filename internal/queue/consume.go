package queue

import (
	"context"

	"rollcall/internal/attendance"
	"rollcall/internal/logger"
)

// ScanWriter appends scan events to the audit log.
type ScanWriter interface {
	AppendScanEvent(ctx context.Context, evt attendance.ScanEvent) error
}

// ConsumeScans writes every scan message to w until ctx is done.
// Messages of other types and undecodable bodies are skipped.
func ConsumeScans(ctx context.Context, q Queue, w ScanWriter, log logger.Logger) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != TypeScan {
			continue
		}
		evt, err := DecodeScan(msg)
		if err != nil {
			log.Warn("skipping malformed scan message", err)
			continue
		}
		if err := w.AppendScanEvent(ctx, evt); err != nil {
			log.Error("append scan event failed", err, map[string]interface{}{"id": evt.ID, "event": evt.EventID})
			continue
		}
		log.Debug("scan event stored", map[string]interface{}{"id": evt.ID, "member": evt.MemberID})
	}
	return nil
}
