// Package notify shows desktop notifications for session changes
package notify

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/lifetrack/lifetrack/crosstab"
	"github.com/lifetrack/lifetrack/internal/timeutil"
)

// Sender displays a notification. beeep.Notify satisfies it.
type Sender func(title, message, icon string) error

// Notifier turns session changes made elsewhere into desktop notifications.
type Notifier struct {
	send    Sender
	log     *slog.Logger
	icon    string
	enabled bool
}

// New returns a Notifier that uses the system notification service.
func New(enabled bool, icon string, log *slog.Logger) *Notifier {
	return &Notifier{
		send:    beeep.Notify,
		log:     log,
		icon:    icon,
		enabled: enabled,
	}
}

// WithSender replaces the notification backend.
func (n *Notifier) WithSender(s Sender) *Notifier {
	n.send = s
	return n
}

// Changed reports a change seen by a crosstab listener.
func (n *Notifier) Changed(c crosstab.Change) {
	if !n.enabled {
		return
	}

	title, msg := Message(c)
	if title == "" {
		return
	}

	err := n.send(title, msg, n.icon)
	if err != nil {
		n.log.Warn("unable to display notification", slog.Any("error", err))
	}
}

// Message describes c for a notification. An empty title means the change
// is not worth showing.
func Message(c crosstab.Change) (title, msg string) {
	switch {
	case c.Expired:
		return "Session expired", "A session older than the allowed age was cleared"
	case c.Session == nil:
		return "Session ended", "The running session was ended in another window"
	case c.Key != "" && c.Session.CorrelationID == "":
		return "", ""
	default:
		label := c.Session.Label
		if label == "" {
			label = c.Session.Kind.String()
		}

		return fmt.Sprintf("%s session running", c.Session.Kind),
			fmt.Sprintf(
				"%s since %s",
				label,
				timeutil.Clock(c.Session.StartedAt.Local(), true),
			)
	}
}
