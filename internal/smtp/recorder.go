package smtp

import "log/slog"

// Step identifies one phase of the SMTP conversation.
type Step string

const (
	StepConnect  Step = "connect"
	StepGreeting Step = "greeting"
	StepEhlo     Step = "ehlo"
	StepStartTLS Step = "starttls"
	StepAuth     Step = "auth"
	StepMailFrom Step = "mail_from"
	StepRcptTo   Step = "rcpt_to"
	StepData     Step = "data"
	StepQuit     Step = "quit"
)

// Event is emitted once per protocol step. Code is the server reply code
// (0 when the step produced none); Warning marks degraded-mode conditions
// such as a skipped TLS upgrade.
type Event struct {
	Step    Step
	Code    int
	Detail  string
	Warning bool
}

// Recorder receives protocol step events. Implementations must be cheap;
// the transport calls them inline during the session.
type Recorder interface {
	Record(ev Event)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}

type logRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder returns a Recorder that logs each step via slog.
func NewLogRecorder(logger *slog.Logger) Recorder {
	return &logRecorder{logger: logger}
}

func (r *logRecorder) Record(ev Event) {
	if ev.Warning {
		r.logger.Warn("smtp step", "step", ev.Step, "code", ev.Code, "detail", ev.Detail)
		return
	}
	r.logger.Debug("smtp step", "step", ev.Step, "code", ev.Code, "detail", ev.Detail)
}
