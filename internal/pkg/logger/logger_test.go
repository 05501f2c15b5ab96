package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFields_PropagatesThroughContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := WithContext(context.Background(), &base)

	ctx = WithFields(ctx, "request_id", "req-1", "user_id", "u-1")
	LogError(ctx, errors.New("boom"), "debit failed", "amount", 30)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, float64(30), line["amount"])
	assert.Equal(t, "debit failed", line["message"])
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}
