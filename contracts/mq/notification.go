package mq

import "time"

// PushRequestedPayload 请求下游 push 网关向设备发送通知（routing key: push.requested）
type PushRequestedPayload struct {
	UserID      int64     `json:"user_id"`
	Tokens      []string  `json:"tokens"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	TraceID     string    `json:"trace_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NotificationRecordedPayload 通知记录写入后经 outbox 发布（routing key: notification.recorded）
type NotificationRecordedPayload struct {
	NotificationID int64     `json:"notification_id"`
	UserID         int64     `json:"user_id"`
	ProductID      *int64    `json:"product_id,omitempty"`
	Channel        string    `json:"channel"`
	Message        string    `json:"message"`
	CycleID        string    `json:"cycle_id"`
	SentAt         time.Time `json:"sent_at"`
	TraceID        string    `json:"trace_id,omitempty"`
}

// ScanRequestedPayload 外部调度器触发一次扫描（routing key: expiry.scan.requested）
type ScanRequestedPayload struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}
