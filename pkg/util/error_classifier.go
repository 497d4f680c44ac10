package util

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// 故障分类：每一类故障最多影响一个扫描周期或一个候选
var (
	// ErrTransientSend 渠道发送失败（网络/认证/协议），下个周期自动重试
	ErrTransientSend = errors.New("transient send failure")
	// ErrDataAccess 数据存储不可达或查询失败，中止当前周期
	ErrDataAccess = errors.New("data access failure")
	// ErrComposerFault 产品数据缺失或格式错误，跳过该候选
	ErrComposerFault = errors.New("composer fault")
)

// Failure kinds, used as log fields and metric labels.
const (
	KindTransientSend = "transient_send"
	KindDataAccess    = "data_access"
	KindComposerFault = "composer_fault"
	KindCanceled      = "canceled"
	KindUnknown       = "unknown"
)

// ClassifyError maps an error onto the failure taxonomy.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrComposerFault):
		return KindComposerFault
	case errors.Is(err, ErrDataAccess):
		return KindDataAccess
	case errors.Is(err, ErrTransientSend):
		return KindTransientSend
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}

	// Database errors
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, pgx.ErrTxClosed) {
		return KindDataAccess
	}

	// SMTP 协议错误（认证失败、拒收等）
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return KindTransientSend
	}

	// Network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientSend
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "timeout") {
		return KindTransientSend
	}

	return KindUnknown
}

// IsRetryableError reports whether the failure clears by itself on a later cycle.
// Returns: (isRetryable, errorKind)
func IsRetryableError(err error) (bool, string) {
	kind := ClassifyError(err)
	switch kind {
	case KindTransientSend, KindDataAccess:
		return true, kind
	default:
		return false, kind
	}
}
