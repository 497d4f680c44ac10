package composer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"foodtracker/internal/model"
	"foodtracker/pkg/util"
)

// ErrMalformedCandidate is returned for a candidate missing data required to build a reminder.
var ErrMalformedCandidate = fmt.Errorf("%w: malformed candidate", util.ErrComposerFault)

// TemplatePayload 是渲染各渠道正文的结构化数据，可选字段为空时在正文中省略
type TemplatePayload struct {
	ProductName    string
	DaysUntil      int
	ExpirationDate string
	ShopName       string
	Amount         string
	Unit           string
}

// HasAmount reports whether the amount line should be rendered. Both amount and unit are required.
func (p TemplatePayload) HasAmount() bool {
	return p.Amount != "" && p.Unit != ""
}

type Message struct {
	// Summary: "{name} expires in {N} days"
	Summary string
	// Text 写入通知记录，同时作为 push 正文
	Text    string
	Payload TemplatePayload
}

// Compose builds the reminder for one candidate as of today. It performs no I/O.
func Compose(c model.Candidate, today time.Time) (Message, error) {
	name := strings.TrimSpace(c.Product.Name)
	if name == "" {
		return Message{}, fmt.Errorf("%w: product %d has no name", ErrMalformedCandidate, c.Product.ID)
	}
	if c.Product.ExpirationDate.IsZero() {
		return Message{}, fmt.Errorf("%w: product %d has no expiration date", ErrMalformedCandidate, c.Product.ID)
	}

	days := model.DaysUntil(today, c.Product.ExpirationDate)
	summary := fmt.Sprintf("%s expires in %d days", name, days)

	payload := TemplatePayload{
		ProductName:    name,
		DaysUntil:      days,
		ExpirationDate: model.Date(c.Product.ExpirationDate).Format("2006-01-02"),
	}
	if c.Product.ShopName != nil {
		payload.ShopName = strings.TrimSpace(*c.Product.ShopName)
	}
	if c.Product.Amount != nil && *c.Product.Amount != 0 {
		payload.Amount = strconv.FormatFloat(*c.Product.Amount, 'f', -1, 64)
	}
	if c.Product.Unit != nil {
		payload.Unit = strings.TrimSpace(*c.Product.Unit)
	}

	return Message{
		Summary: summary,
		Text:    "Reminder: " + summary,
		Payload: payload,
	}, nil
}

// IsMalformed reports whether err came from Compose rejecting its input.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedCandidate)
}
