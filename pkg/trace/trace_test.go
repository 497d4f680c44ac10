package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))

	id := GenerateTraceID()
	assert.Len(t, id, 32)

	ctx := WithContext(context.Background(), id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestGenerateTraceID_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateTraceID(), GenerateTraceID())
}
