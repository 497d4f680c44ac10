package channel

import (
	"context"

	"foodtracker/internal/model"
)

// Recipient identifies who a reminder goes to.
type Recipient struct {
	UserID int64
	Email  string
}

// Sender 的实现负责一次投递尝试：所有错误在内部捕获、记录并以 false 返回，不做重试
type Sender interface {
	Channel() model.Channel
	Deliver(ctx context.Context, to Recipient, subject, body string) bool
}
