package mcpconn

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError_ContextCanceledNoRetry(t *testing.T) {
	assert.Equal(t, NoRetry, ClassifyError(context.Canceled))
}

func TestClassifyError_TimeoutsRetryNewSession(t *testing.T) {
	assert.Equal(t, RetryNewSession, ClassifyError(context.DeadlineExceeded))
	for _, msg := range []string{"request timed out", "service temporarily unavailable", "network unreachable"} {
		assert.Equal(t, RetryNewSession, ClassifyError(errors.New(msg)), msg)
	}
}

func TestClassifyError_AuthErrorsRetryAfterTokenRefresh(t *testing.T) {
	for _, msg := range []string{"401 Unauthorized", "request failed: unauthenticated", "invalid_token", "Authentication failed"} {
		assert.Equal(t, RetryAfterTokenRefresh, ClassifyError(errors.New(msg)), msg)
	}
}

func TestClassifyError_ConnectionErrorsRetryNewSession(t *testing.T) {
	for _, msg := range []string{"connection refused", "connection reset by peer", "broken pipe", "no such host"} {
		assert.Equal(t, RetryNewSession, ClassifyError(errors.New(msg)), msg)
	}
	assert.Equal(t, RetryNewSession, ClassifyError(net.ErrClosed))
}

func TestClassifyError_UnknownErrorNoRetry(t *testing.T) {
	assert.Equal(t, NoRetry, ClassifyError(errors.New("something unrelated went wrong")))
}

func TestClassifyError_NilIsNoRetry(t *testing.T) {
	assert.Equal(t, NoRetry, ClassifyError(nil))
}
