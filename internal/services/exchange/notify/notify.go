// Package notify emits best-effort assignment notifications.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/kringleapp/kringle/internal/services/exchange/domain"
	"go.opentelemetry.io/otel/trace"
)

// LogNotifier records assignment availability as structured log lines.
// Delivery is observational only; downstream channels (email, push) tail
// the log pipeline rather than blocking the commit path.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier builds a notifier writing to logger. A nil logger falls
// back to the process default.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// AssignmentAvailable implements domain.Notifier.
func (n *LogNotifier) AssignmentAvailable(ctx context.Context, event domain.AssignmentEvent) error {
	if strings.TrimSpace(event.GroupID) == "" {
		return fmt.Errorf("assignment event group id is required")
	}
	if len(event.ParticipantIDs) == 0 {
		return fmt.Errorf("assignment event has no participants")
	}

	line := fmt.Sprintf("assignment available group=%s participants=%s",
		event.GroupID, strings.Join(event.ParticipantIDs, ","))
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		line += " trace_id=" + sc.TraceID().String()
	}
	n.logger.Print(line)
	return nil
}
