package build

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// TestCommandBuilder tests the shell-command build step
func TestCommandBuilder(t *testing.T) {
	t.Run("Should succeed and expose the paths through the environment", func(t *testing.T) {
		skipWithoutShell(t)
		project := t.TempDir()
		output := t.TempDir()

		b := &CommandBuilder{
			Command: `echo "$SITEDEPLOY_CONFIGURATION" > "$SITEDEPLOY_OUTPUT/marker.txt"`,
			Log:     zerolog.Nop(),
		}

		res, err := b.Build(context.Background(), project, output, "Release")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, output, res.OutputPath)
		assert.Greater(t, res.Duration, time.Duration(0))

		content, err := os.ReadFile(filepath.Join(output, "marker.txt"))
		require.NoError(t, err)
		assert.Equal(t, "Release\n", string(content))
	})

	t.Run("Should capture the trailing output lines on failure", func(t *testing.T) {
		skipWithoutShell(t)
		b := &CommandBuilder{
			Command: `echo "error CS0103: something is wrong"; exit 1`,
			Log:     zerolog.Nop(),
		}

		res, err := b.Build(context.Background(), t.TempDir(), t.TempDir(), "")

		require.Error(t, err)
		require.NotNil(t, res)
		assert.False(t, res.Success)
		require.NotEmpty(t, res.Errors)
		assert.Contains(t, res.Errors[0], "CS0103")

		var berr *Error
		require.ErrorAs(t, err, &berr)
		assert.True(t, berr.IsPermanent(), "build failures are never retried")
	})

	t.Run("Should fail without a configured command", func(t *testing.T) {
		b := &CommandBuilder{Log: zerolog.Nop()}
		_, err := b.Build(context.Background(), t.TempDir(), t.TempDir(), "")
		assert.Error(t, err)
	})
}
