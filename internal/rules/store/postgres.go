package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tokengate/internal/rules"
	"tokengate/pkg/sentinel"
)

// PostgresStore persists rules in PostgreSQL. The unique index on tag is the
// only concurrency control rule creation needs: the database picks the winner
// of a duplicate-tag race and the loser sees sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed rule store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS captcha_rules (
	id            UUID PRIMARY KEY,
	tag           VARCHAR(64) NOT NULL,
	enabled       BOOLEAN NOT NULL DEFAULT FALSE,
	score         INTEGER NOT NULL DEFAULT 50,
	action        VARCHAR(255) NOT NULL DEFAULT '',
	action_to_take VARCHAR(16) NOT NULL DEFAULT 'Block',
	auto_created  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT captcha_rules_tag_key UNIQUE (tag)
);
CREATE INDEX IF NOT EXISTS captcha_rules_enabled_idx ON captcha_rules (enabled);
`

// EnsureSchema creates the rules table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure captcha_rules schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rule *rules.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captcha_rules (id, tag, enabled, score, action, action_to_take, auto_created, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.ID, rule.Tag, rule.Enabled, rule.Score, rule.Action, string(rule.ActionToTake), rule.AutoCreated, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByTag(ctx context.Context, tag string) (*rules.Rule, error) {
	return s.get(ctx, `
		SELECT id, tag, enabled, score, action, action_to_take, auto_created, created_at, updated_at
		FROM captcha_rules WHERE tag = $1`, tag)
}

func (s *PostgresStore) GetEnabledByTag(ctx context.Context, tag string) (*rules.Rule, error) {
	return s.get(ctx, `
		SELECT id, tag, enabled, score, action, action_to_take, auto_created, created_at, updated_at
		FROM captcha_rules WHERE tag = $1 AND enabled`, tag)
}

func (s *PostgresStore) get(ctx context.Context, query, tag string) (*rules.Rule, error) {
	var rule rules.Rule
	var actionToTake string
	err := s.db.QueryRowContext(ctx, query, tag).Scan(
		&rule.ID, &rule.Tag, &rule.Enabled, &rule.Score, &rule.Action, &actionToTake, &rule.AutoCreated, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	rule.ActionToTake = rules.ActionToTake(actionToTake)
	return &rule, nil
}

func (s *PostgresStore) Update(ctx context.Context, rule *rules.Rule) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE captcha_rules
		SET enabled = $2, score = $3, action = $4, action_to_take = $5, auto_created = $6, updated_at = $7
		WHERE tag = $1`,
		rule.Tag, rule.Enabled, rule.Score, rule.Action, string(rule.ActionToTake), rule.AutoCreated, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, tag string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM captcha_rules WHERE tag = $1`, tag)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*rules.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tag, enabled, score, action, action_to_take, auto_created, created_at, updated_at
		FROM captcha_rules ORDER BY tag ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*rules.Rule
	for rows.Next() {
		var rule rules.Rule
		var actionToTake string
		if err := rows.Scan(
			&rule.ID, &rule.Tag, &rule.Enabled, &rule.Score, &rule.Action, &actionToTake, &rule.AutoCreated, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.ActionToTake = rules.ActionToTake(actionToTake)
		out = append(out, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
