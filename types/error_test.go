package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true)

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "[UPSTREAM_ERROR] upstream failed: root", err.Error())
}

func TestAsError_Wrapped(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("handler: %w", NewNotFoundError("thread not found"))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, e.HTTPStatus)
	assert.True(t, IsErrorCode(wrapped, ErrNotFound))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrNotFound))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, NewInvalidRequestError("x").HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, NewInternalError("x").HTTPStatus)

	unavailable := NewServiceUnavailableError("backend down")
	assert.Equal(t, http.StatusServiceUnavailable, unavailable.HTTPStatus)
	assert.True(t, unavailable.Retryable)
}
