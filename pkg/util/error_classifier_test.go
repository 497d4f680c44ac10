package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped composer fault", fmt.Errorf("product 3: %w", ErrComposerFault), KindComposerFault},
		{"wrapped data access", fmt.Errorf("select candidates: %w", ErrDataAccess), KindDataAccess},
		{"wrapped transient send", fmt.Errorf("smtp: %w", ErrTransientSend), KindTransientSend},
		{"pg error", &pgconn.PgError{Code: "57P01"}, KindDataAccess},
		{"no rows", pgx.ErrNoRows, KindDataAccess},
		{"smtp auth rejected", &textproto.Error{Code: 535, Msg: "auth failed"}, KindTransientSend},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, KindTransientSend},
		{"canceled", context.Canceled, KindCanceled},
		{"unknown", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	retry, kind := IsRetryableError(fmt.Errorf("x: %w", ErrDataAccess))
	assert.True(t, retry)
	assert.Equal(t, KindDataAccess, kind)

	retry, kind = IsRetryableError(fmt.Errorf("x: %w", ErrComposerFault))
	assert.False(t, retry)
	assert.Equal(t, KindComposerFault, kind)
}
