package messagelog

import (
	"context"

	"github.com/ericyu4real/mscac-chatbot/internal/models"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	PingDatabase() error
}

// PostgresStore writes one row per entry through the message repository.
// The connection is owned by the database manager, so Close is a no-op.
type PostgresStore struct {
	repo models.MessageRepository
	db   Pinger
}

func NewPostgresStore(repo models.MessageRepository, db Pinger) *PostgresStore {
	return &PostgresStore{repo: repo, db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.repo.Create(&models.Message{
		UserIP:   entry.ClientAddress,
		Datetime: entry.Datetime,
		Message:  entry.Message,
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingDatabase() }

func (s *PostgresStore) Close() error { return nil }
