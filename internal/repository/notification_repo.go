package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbcontracts "foodtracker/contracts/db"
	mqcontracts "foodtracker/contracts/mq"
	"foodtracker/pkg/mq"
	"foodtracker/pkg/otel"
	"foodtracker/pkg/outbox"
	"foodtracker/pkg/trace"
)

type NotificationRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

// InsertRecord 写入一条通知记录，并在同一事务中写 notification.recorded outbox 事件
func (r *NotificationRepository) InsertRecord(ctx context.Context, rec *dbcontracts.NotificationRecord) error {
	return otel.Query(ctx, "insert", "notifications", func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if rec.SentAt.IsZero() {
			rec.SentAt = time.Now().UTC()
		}
		rec.IsSent = true

		err = tx.QueryRow(ctx, `
			INSERT INTO notifications (user_id, product_id, notification_type, message, cycle_id, sent_at, is_sent)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`,
			rec.UserID,
			rec.ProductID,
			rec.NotificationType,
			rec.Message,
			rec.CycleID,
			rec.SentAt,
			rec.IsSent,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}

		payload := mqcontracts.NotificationRecordedPayload{
			NotificationID: rec.ID,
			UserID:         rec.UserID,
			ProductID:      rec.ProductID,
			Channel:        rec.NotificationType,
			Message:        rec.Message,
			CycleID:        rec.CycleID,
			SentAt:         rec.SentAt,
			TraceID:        trace.FromContext(ctx),
		}
		id := rec.ID
		if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "notification", &id, mq.RoutingKeyNotificationRecorded, payload); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit notification: %w", err)
		}

		r.logger.Debug("Notification recorded",
			zap.Int64("id", rec.ID),
			zap.Int64("user_id", rec.UserID),
			zap.String("type", rec.NotificationType),
		)
		return nil
	})
}
