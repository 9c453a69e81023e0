package system

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger()
	require.NotNil(t, logger)
	logger.Infow("test message with fields", "key", "value")
	require.NotNil(t, NewTestZapLogger())
}
