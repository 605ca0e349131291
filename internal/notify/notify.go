package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"smartattend/internal/attendance"
	"smartattend/internal/metrics"
	"smartattend/internal/queue"
)

// Notice is one per-student attendance message.
type Notice struct {
	RecordID  string
	Lecture   string
	StudentID string
	Name      string
	Present   bool
}

// Notifier turns settled detections into per-student notices.
type Notifier struct {
	log     *slog.Logger
	metrics metrics.Recorder
	// Deliver, if set, receives each notice after it is logged.
	Deliver func(ctx context.Context, n Notice) error
}

// New returns a notifier. A nil recorder disables metrics.
func New(log *slog.Logger, rec metrics.Recorder) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Notifier{log: log, metrics: rec}
}

// Notify emits one notice per attended and absent student and returns how
// many were sent.
func (n *Notifier) Notify(ctx context.Context, evt attendance.SettledEvent) (int, error) {
	notices := make([]Notice, 0, len(evt.Attended)+len(evt.Absent))
	for _, s := range evt.Attended {
		notices = append(notices, Notice{RecordID: evt.RecordID, Lecture: evt.LectureName, StudentID: s.ExternalID, Name: s.Name, Present: true})
	}
	for _, s := range evt.Absent {
		notices = append(notices, Notice{RecordID: evt.RecordID, Lecture: evt.LectureName, StudentID: s.ExternalID, Name: s.Name})
	}

	sent := 0
	for _, notice := range notices {
		if err := ctx.Err(); err != nil {
			n.metrics.NotificationsSent(sent)
			return sent, err
		}
		n.log.Info("attendance notice",
			"record_id", notice.RecordID,
			"lecture", notice.Lecture,
			"student_id", notice.StudentID,
			"present", notice.Present,
		)
		if n.Deliver != nil {
			if err := n.Deliver(ctx, notice); err != nil {
				n.log.Warn("notice delivery failed", "student_id", notice.StudentID, "error", err)
				continue
			}
		}
		sent++
	}
	n.metrics.NotificationsSent(sent)
	return sent, nil
}

// Handle decodes a queue message and notifies. Unknown types are ignored.
func (n *Notifier) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != attendance.EventSettled {
		n.log.Debug("ignoring message", "type", msg.Type)
		return nil
	}
	var evt attendance.SettledEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	_, err := n.Notify(ctx, evt)
	return err
}

// Run consumes q until ctx is done or the channel closes.
func (n *Notifier) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range messages {
		if err := n.Handle(ctx, msg); err != nil {
			n.log.Error("handle message", "type", msg.Type, "error", err)
		}
	}
	return nil
}
