package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store is keyed by (user_id, provider); every query is scoped to the
// owning user.
type Store interface {
	Upsert(ctx context.Context, userID int64, provider Provider, encryptedToken string) (Connector, error)
	List(ctx context.Context, userID int64) ([]Connector, error)
	Get(ctx context.Context, userID int64, provider Provider) (Connector, error)
	Deactivate(ctx context.Context, userID int64, provider Provider) error
	Toggle(ctx context.Context, userID int64, provider Provider) (Connector, error)
	TouchLastUsed(ctx context.Context, userID int64, provider Provider, at time.Time) error
}

const connectorColumns = `id, user_id, provider, encrypted_token, is_active, last_used_at, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Upsert(ctx context.Context, userID int64, provider Provider, encryptedToken string) (Connector, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO connectors (user_id, provider, encrypted_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider)
		DO UPDATE SET
			encrypted_token = EXCLUDED.encrypted_token,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING `+connectorColumns, userID, provider, encryptedToken)

	connector, err := scanConnector(row)
	if err != nil {
		return Connector{}, fmt.Errorf("upsert connector: %w", err)
	}

	return connector, nil
}

func (r *Repository) List(ctx context.Context, userID int64) ([]Connector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+connectorColumns+`
		FROM connectors
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query connectors: %w", err)
	}
	defer rows.Close()

	connectors := make([]Connector, 0)
	for rows.Next() {
		connector, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connector: %w", err)
		}
		connectors = append(connectors, connector)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connectors: %w", err)
	}

	return connectors, nil
}

func (r *Repository) Get(ctx context.Context, userID int64, provider Provider) (Connector, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+connectorColumns+`
		FROM connectors
		WHERE user_id = $1 AND provider = $2
	`, userID, provider)

	connector, err := scanConnector(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Connector{}, ErrNotFound
		}
		return Connector{}, fmt.Errorf("query connector: %w", err)
	}

	return connector, nil
}

func (r *Repository) Deactivate(ctx context.Context, userID int64, provider Provider) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE connectors
		SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	if err != nil {
		return fmt.Errorf("deactivate connector: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate connector rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) Toggle(ctx context.Context, userID int64, provider Provider) (Connector, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE connectors
		SET is_active = NOT is_active, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2
		RETURNING `+connectorColumns, userID, provider)

	connector, err := scanConnector(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Connector{}, ErrNotFound
		}
		return Connector{}, fmt.Errorf("toggle connector: %w", err)
	}

	return connector, nil
}

func (r *Repository) TouchLastUsed(ctx context.Context, userID int64, provider Provider, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE connectors
		SET last_used_at = $3
		WHERE user_id = $1 AND provider = $2
	`, userID, provider, at.UTC())
	if err != nil {
		return fmt.Errorf("touch connector: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnector(row rowScanner) (Connector, error) {
	var connector Connector
	var provider string
	var lastUsedAt sql.NullTime
	if err := row.Scan(
		&connector.ID, &connector.UserID, &provider, &connector.EncryptedToken,
		&connector.IsActive, &lastUsedAt, &connector.CreatedAt, &connector.UpdatedAt,
	); err != nil {
		return Connector{}, err
	}
	connector.Provider = Provider(provider)
	if lastUsedAt.Valid {
		value := lastUsedAt.Time.UTC()
		connector.LastUsedAt = &value
	}

	return connector, nil
}
