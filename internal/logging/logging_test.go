package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Config{Level: "WARN"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetDefault(prev) })

	nop := zap.NewNop()
	SetDefault(nop)
	assert.Same(t, nop, L())

	SetDefault(nil)
	assert.NotNil(t, L())
	assert.NotNil(t, Named(nil, "engine"))
}
