package db

import "time"

// NotificationRecord 表示 notifications 表的一行；只插入，不更新不删除
type NotificationRecord struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	ProductID        *int64    `json:"product_id,omitempty"`
	NotificationType string    `json:"notification_type"` // email / push / both
	Message          string    `json:"message"`
	CycleID          string    `json:"cycle_id"`
	SentAt           time.Time `json:"sent_at"`
	IsSent           bool      `json:"is_sent"`
	CreatedAt        time.Time `json:"created_at"`
}
