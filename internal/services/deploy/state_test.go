package deploy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func finalState() *State {
	started := time.Now().Add(-time.Minute)
	completed := time.Now()
	return &State{
		ID:             "dep-1",
		StartedAt:      started,
		CompletedAt:    &completed,
		TotalFiles:     10,
		CompletedFiles: 9,
		FailedFiles:    2,
		TotalBytes:     4096,
		UploadedBytes:  3072,
		Warnings:       []string{"w1"},
		FailedPaths:    []string{"a.txt", "b.txt"},
	}
}

// TestResultFactories tests the terminal result constructors
func TestResultFactories(t *testing.T) {
	t.Run("Should derive uploaded files from completed minus failed", func(t *testing.T) {
		r := NewSuccessResult(finalState())

		assert.True(t, r.Success)
		assert.Equal(t, StageCompleted, r.FinalStage)
		assert.Equal(t, 7, r.UploadedFiles)
		assert.Equal(t, 2, r.FailedFiles)
		assert.Equal(t, int64(3072), r.UploadedBytes)
	})

	t.Run("Should carry the message and cause on failure", func(t *testing.T) {
		cause := errors.New("connection reset")
		r := NewFailureResult(finalState(), "upload failed", cause)

		assert.False(t, r.Success)
		assert.Equal(t, StageFailed, r.FinalStage)
		assert.Contains(t, r.Errors, "upload failed")
		assert.ErrorIs(t, r.Err, cause)
	})

	t.Run("Should mark cancelled results as cancelled, not failed", func(t *testing.T) {
		r := NewCancelledResult(finalState())

		assert.True(t, r.Cancelled)
		assert.False(t, r.Success)
		assert.Equal(t, StageCancelled, r.FinalStage)
		assert.Contains(t, r.Errors, "deployment cancelled")
	})

	t.Run("Should copy slices so later state mutations do not leak in", func(t *testing.T) {
		s := finalState()
		r := NewSuccessResult(s)

		s.Warnings[0] = "mutated"
		s.FailedPaths[0] = "mutated"

		assert.Equal(t, "w1", r.Warnings[0])
		assert.Equal(t, "a.txt", r.FailedPaths[0])
	})

	t.Run("Should measure the duration between start and completion", func(t *testing.T) {
		r := NewSuccessResult(finalState())
		assert.InDelta(t, time.Minute.Seconds(), r.Duration().Seconds(), 1.0)
	})
}

// TestStage tests the stage enum helpers
func TestStage(t *testing.T) {
	t.Run("Should name every stage", func(t *testing.T) {
		for s := StageNotStarted; s <= StageCancelled; s++ {
			assert.NotEqual(t, "Unknown", s.String())
		}
		assert.Equal(t, "Unknown", Stage(99).String())
	})

	t.Run("Should treat only the end states as terminal", func(t *testing.T) {
		assert.True(t, StageCompleted.Terminal())
		assert.True(t, StageFailed.Terminal())
		assert.True(t, StageCancelled.Terminal())
		assert.False(t, StageUploadingFiles.Terminal())
		assert.False(t, StageNotStarted.Terminal())
	})
}
