// Package notify abstracts the outbound message channels interventions and
// award notifications are delivered over. The engine decides what to send
// and over which channel; concrete delivery belongs to provider integrations
// behind the Notifier interface.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Message is one outbound message addressed to a user.
type Message struct {
	UserID  string
	Title   string
	Body    string
	// Meta carries channel-specific hints (template ids, deep links).
	Meta map[string]string
}

// Notifier delivers messages over the supported channels. Implementations
// must be safe for concurrent use and should honor ctx cancellation.
type Notifier interface {
	SendEmail(ctx context.Context, msg Message) error
	SendSMS(ctx context.Context, msg Message) error
	SendPush(ctx context.Context, msg Message) error
	SendInApp(ctx context.Context, msg Message) error
}

// LogNotifier logs every message instead of delivering it. It is the default
// wiring for local runs and tests.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendEmail(ctx context.Context, msg Message) error {
	return n.log(ctx, "email", msg)
}

func (n *LogNotifier) SendSMS(ctx context.Context, msg Message) error {
	return n.log(ctx, "sms", msg)
}

func (n *LogNotifier) SendPush(ctx context.Context, msg Message) error {
	return n.log(ctx, "push", msg)
}

func (n *LogNotifier) SendInApp(ctx context.Context, msg Message) error {
	return n.log(ctx, "in_app", msg)
}

func (n *LogNotifier) log(ctx context.Context, channel string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Infof("notify channel=%s user=%s title=%q body=%q", channel, msg.UserID, msg.Title, msg.Body)
	return nil
}
