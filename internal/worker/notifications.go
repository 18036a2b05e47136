package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aarambh-client/internal/config"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/notify"

	"github.com/rs/zerolog"
)

type UnreadCounter interface {
	UnreadNotificationCount(ctx context.Context) (int, error)
}

// NotificationPoller refreshes the unread notification count on a fixed
// interval and raises a toast when it grows.
type NotificationPoller struct {
	cfg      config.NotificationsConfig
	api      UnreadCounter
	notifier notify.Notifier

	mu       sync.Mutex
	timer    *time.Timer
	unread   int
	polledAt time.Time

	log zerolog.Logger
}

func NewNotificationPoller(cfg config.NotificationsConfig, api UnreadCounter, notifier notify.Notifier) *NotificationPoller {
	if notifier == nil {
		notifier = notify.NewLog()
	}
	return &NotificationPoller{
		cfg:      cfg,
		api:      api,
		notifier: notifier,
		log:      logger.For("notifications"),
	}
}

// Start polls until ctx is done. It returns ctx.Err().
func (w *NotificationPoller) Start(ctx context.Context) error {
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	w.log.Info().Dur("interval", interval).Msg("Starting notification poller")

	if w.cfg.PollOnStart {
		if err := w.Poll(ctx); err != nil {
			w.log.Warn().Err(err).Msg("Initial notification poll failed")
		}
	}

	w.mu.Lock()
	w.timer = time.NewTimer(interval)
	timer := w.timer
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Notification poller context cancelled")
			return ctx.Err()
		case <-timer.C:
			if err := w.Poll(ctx); err != nil {
				w.log.Warn().Err(err).Msg("Notification poll failed")
			}
			timer.Reset(interval)
		}
	}
}

func (w *NotificationPoller) Stop() {
	w.log.Info().Msg("Stopping notification poller")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Poll fetches the unread count once.
func (w *NotificationPoller) Poll(ctx context.Context) error {
	n, err := w.api.UnreadNotificationCount(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	prev := w.unread
	first := w.polledAt.IsZero()
	w.unread = n
	w.polledAt = time.Now()
	w.mu.Unlock()

	w.log.Debug().Int("unread", n).Msg("Unread notifications polled")
	if n > prev && (!first || n > 0) {
		w.notifier.Notify(notify.Toast{
			Level:   notify.LevelInfo,
			Title:   "New notifications",
			Message: fmt.Sprintf("You have %d unread notifications", n),
		})
	}
	return nil
}

// Unread is the last polled count and when it was taken.
func (w *NotificationPoller) Unread() (int, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unread, w.polledAt
}
