package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("JSON形式でロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		l, err := New("debug", "json")
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console形式でレベルが反映されること", func(t *testing.T) {
		t.Parallel()

		l, err := New("warn", "console")
		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("不正なレベルはエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := New("verbose", "json")
		assert.Error(t, err)
	})

	t.Run("不正な形式はエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := New("info", "xml")
		assert.Error(t, err)
	})
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, OrNop(nil))
}
