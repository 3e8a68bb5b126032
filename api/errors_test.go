package api_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-burn/api"
)

func TestErrorWrapKeepsSentinel(t *testing.T) {
	err := api.Wrap(api.ErrSocketCreate, api.ErrCodeSocket, "connection 7").
		WithContext("errno", -24)
	wrapped := fmt.Errorf("worker 0: %w", err)

	require.ErrorIs(t, wrapped, api.ErrSocketCreate)
	assert.Equal(t, api.ErrCodeSocket, api.CodeOf(wrapped))
	assert.Contains(t, err.Error(), "errno")
	assert.Contains(t, err.Error(), api.ErrSocketCreate.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, api.ErrCodeOK, api.CodeOf(nil))
	assert.Equal(t, api.ErrCodeInternal, api.CodeOf(errors.New("plain")))
	assert.Equal(t, "ring_setup", api.ErrCodeRingSetup.String())
}
