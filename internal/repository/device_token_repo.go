package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"foodtracker/pkg/otel"
)

type DeviceTokenRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDeviceTokenRepository(db *pgxpool.Pool, logger *zap.Logger) *DeviceTokenRepository {
	return &DeviceTokenRepository{
		db:     db,
		logger: logger,
	}
}

// ListTokens returns the push tokens registered for userID, newest first.
func (r *DeviceTokenRepository) ListTokens(ctx context.Context, userID int64) ([]string, error) {
	var tokens []string
	err := otel.Query(ctx, "select", "device_tokens", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT token FROM device_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC
		`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				return err
			}
			tokens = append(tokens, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens for user %d: %w", userID, err)
	}
	return tokens, nil
}
