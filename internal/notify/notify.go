package notify

import (
	"sync"

	"aarambh-client/internal/logger"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Toast is a short user-facing notice.
type Toast struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notifier shows toasts to the user.
type Notifier interface {
	Notify(t Toast)
}

// Log writes toasts to the component log. Used where no UI is attached.
type Log struct {
	log zerolog.Logger
}

func NewLog() *Log {
	return &Log{log: logger.For("toast")}
}

func (l *Log) Notify(t Toast) {
	var ev *zerolog.Event
	switch t.Level {
	case LevelError:
		ev = l.log.Error()
	case LevelWarning:
		ev = l.log.Warn()
	default:
		ev = l.log.Info()
	}
	ev.Str("level", string(t.Level)).Str("title", t.Title).Msg(t.Message)
}

// Recorder keeps every toast in order. The agent drains it into responses;
// tests assert on it.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Drain returns and forgets the recorded toasts.
func (r *Recorder) Drain() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.toasts
	r.toasts = nil
	return out
}

// Fanout delivers each toast to every notifier.
type Fanout []Notifier

func (f Fanout) Notify(t Toast) {
	for _, n := range f {
		n.Notify(t)
	}
}

func Success(title, message string) Toast {
	return Toast{Level: LevelSuccess, Title: title, Message: message}
}

func Warning(title, message string) Toast {
	return Toast{Level: LevelWarning, Title: title, Message: message}
}

func Error(title, message string) Toast {
	return Toast{Level: LevelError, Title: title, Message: message}
}
