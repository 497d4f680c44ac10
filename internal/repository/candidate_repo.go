package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"foodtracker/internal/model"
	"foodtracker/pkg/otel"
)

type CandidateRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCandidateRepository(db *pgxpool.Pool, logger *zap.Logger) *CandidateRepository {
	return &CandidateRepository{
		db:     db,
		logger: logger,
	}
}

// ListCandidates 返回 today 时处于各自提醒窗口内的活跃产品及其活跃用户。
// 没有 user_settings 行的用户使用 defaults。
func (r *CandidateRepository) ListCandidates(ctx context.Context, today time.Time, defaults model.UserSettings) ([]model.Candidate, error) {
	query := `
		SELECT p.id, p.user_id, p.name, p.expiration_date, p.is_active,
		       p.shop_name, p.amount, p.unit,
		       u.id, u.email, u.is_active,
		       COALESCE(s.notification_days, $2),
		       COALESCE(s.email_enabled, $3),
		       COALESCE(s.push_enabled, $4)
		FROM products p
		JOIN users u ON u.id = p.user_id
		LEFT JOIN user_settings s ON s.user_id = u.id
		WHERE p.is_active = TRUE
		  AND u.is_active = TRUE
		  AND p.expiration_date >= $1::date
		  AND p.expiration_date <= $1::date + COALESCE(s.notification_days, $2)
		ORDER BY p.user_id, p.expiration_date, p.id
	`

	var out []model.Candidate
	err := otel.Query(ctx, "select", "products", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query,
			model.Date(today),
			defaults.NotificationDays,
			defaults.EmailEnabled,
			defaults.PushEnabled,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c model.Candidate
			if err := rows.Scan(
				&c.Product.ID,
				&c.Product.UserID,
				&c.Product.Name,
				&c.Product.ExpirationDate,
				&c.Product.IsActive,
				&c.Product.ShopName,
				&c.Product.Amount,
				&c.Product.Unit,
				&c.User.ID,
				&c.User.Email,
				&c.User.IsActive,
				&c.Settings.NotificationDays,
				&c.Settings.EmailEnabled,
				&c.Settings.PushEnabled,
			); err != nil {
				return fmt.Errorf("failed to scan candidate: %w", err)
			}
			c.Settings.UserID = c.User.ID
			c.Product.ExpirationDate = model.Date(c.Product.ExpirationDate)
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		r.logger.Error("Failed to list expiring products", zap.Error(err))
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	r.logger.Debug("Listed expiring products",
		zap.Time("today", model.Date(today)),
		zap.Int("count", len(out)),
	)
	return out, nil
}
