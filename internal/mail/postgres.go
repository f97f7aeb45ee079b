package mail

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// PostgresStore keeps messages in the messages table created by
// db.RunMigrations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, m *Message) error {
	const q = `
		INSERT INTO messages (id, address, subject, content, origin, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, q, m.ID, m.Address, m.Subject, m.Content, m.Origin, m.Timestamp)
	return err
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Message, error) {
	clauses := []string{"1=1"}
	args := []interface{}{}

	if f.Participant != "" {
		args = append(args, f.Participant)
		n := "$" + strconv.Itoa(len(args))
		clauses = append(clauses, "(origin = "+n+" OR address = "+n+")")
	}

	query := "SELECT id, address, subject, content, origin, ts FROM messages WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY ts DESC LIMIT " + strconv.Itoa(effectiveLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Address, &m.Subject, &m.Content, &m.Origin, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
