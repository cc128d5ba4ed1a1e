package workflow

import "go.uber.org/zap"

// ProgressEvent is one live progress update for a property run. Events
// carry no control flow back into the pipeline.
type ProgressEvent struct {
	Phase    string `json:"phase"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
	Percent  int    `json:"percent"`
	Terminal bool   `json:"terminal,omitempty"`
}

// ProgressSink receives progress events. Every property run ends with a
// terminal event, including failures and cancellations.
type ProgressSink interface {
	Progress(ev ProgressEvent)
}

// zapSink logs progress events through the global logger.
type zapSink struct{}

func (zapSink) Progress(ev ProgressEvent) {
	zap.L().Info("workflow: progress",
		zap.String("phase", ev.Phase),
		zap.String("message", ev.Message),
		zap.String("detail", ev.Detail),
		zap.Int("percent", ev.Percent),
		zap.Bool("terminal", ev.Terminal),
	)
}
