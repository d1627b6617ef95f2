package notify

import (
	"context"
	"log/slog"
)

// Notifier schedules a local device alert. Fire-and-forget: delivery is the
// platform's problem, so there is nothing useful to return.
type Notifier interface {
	ScheduleLocalAlert(ctx context.Context, title, body string)
}

// LogNotifier records alerts in the structured log. It stands in wherever no
// platform notification bridge is wired up.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ScheduleLocalAlert(_ context.Context, title, body string) {
	n.logger.Info("local alert scheduled", "title", title, "body", body)
}
