// Package messagelog records every answered exchange in an append-only
// store.
package messagelog

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
)

// TimestampLayout renders as MM/DD/YYYY hh:mm:ss AM/PM.
const TimestampLayout = "01/02/2006 03:04:05 PM"

type Entry struct {
	Datetime      string `json:"datetime"`
	Message       string `json:"message"`
	ClientAddress string `json:"user_ip"`
}

// Store persists entries. Append must be safe for concurrent callers and
// must never lose an acknowledged entry.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Ping(ctx context.Context) error
	Close() error
}

type MessageLog struct {
	store    Store
	location *time.Location
	now      func() time.Time
	logger   *logrus.Logger
}

func New(store Store, timezone string, logger *logrus.Logger) (*MessageLog, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", timezone, err)
	}
	return &MessageLog{
		store:    store,
		location: loc,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Record appends one entry stamped with the current civil time. It reports
// failure as false and never panics.
func (l *MessageLog) Record(ctx context.Context, clientAddress, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("Message store panicked")
			ok = false
		}
	}()

	entry := Entry{
		Datetime:      l.Timestamp(),
		Message:       text,
		ClientAddress: clientAddress,
	}

	if err := l.store.Append(ctx, entry); err != nil {
		l.logger.WithError(err).WithField("client_address", clientAddress).Error("Failed to record message")
		return false
	}
	return true
}

func (l *MessageLog) Timestamp() string {
	return l.now().In(l.location).Format(TimestampLayout)
}

func (l *MessageLog) Ping(ctx context.Context) error { return l.store.Ping(ctx) }

func (l *MessageLog) Close() error { return l.store.Close() }

// FormatExchange flattens one question and answer into the logged text.
func FormatExchange(question, answer string) string {
	return fmt.Sprintf("User: %s; Bot: %s", question, answer)
}
