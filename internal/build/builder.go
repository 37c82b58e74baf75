// Package build invokes the project's build step and reports its outcome.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Result is the outcome of one build invocation.
type Result struct {
	Success    bool
	Errors     []string
	OutputPath string
	Duration   time.Duration
}

// Builder turns a project path into a directory of deployable output.
type Builder interface {
	Build(ctx context.Context, projectPath, outputPath, configuration string) (*Result, error)
}

// Error is a build failure. Build failures are never retried.
type Error struct {
	Errors []string
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return "build failed"
	}
	return fmt.Sprintf("build failed: %s", e.Errors[0])
}

// IsPermanent marks the error as never retryable.
func (e *Error) IsPermanent() bool { return true }

// CommandBuilder runs a user-configured shell command. The project path,
// output path and configuration are exposed to the command through
// SITEDEPLOY_* environment variables.
type CommandBuilder struct {
	Command string
	Log     zerolog.Logger
}

func (b *CommandBuilder) Build(ctx context.Context, projectPath, outputPath, configuration string) (*Result, error) {
	if b.Command == "" {
		return nil, &Error{Errors: []string{"no build command configured"}}
	}

	start := time.Now()
	b.Log.Info().Str("project", projectPath).Str("command", b.Command).Msg("building project")

	cmd := exec.CommandContext(ctx, "sh", "-c", b.Command)
	cmd.Dir = projectPath
	cmd.Env = append(os.Environ(),
		"SITEDEPLOY_PROJECT="+projectPath,
		"SITEDEPLOY_OUTPUT="+outputPath,
		"SITEDEPLOY_CONFIGURATION="+configuration,
	)

	out, err := cmd.CombinedOutput()
	duration := time.Since(start)
	if err != nil {
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		if len(lines) > 20 {
			lines = lines[len(lines)-20:]
		}
		return &Result{Success: false, Errors: lines, OutputPath: outputPath, Duration: duration},
			&Error{Errors: lines}
	}

	b.Log.Info().Dur("duration", duration).Msg("build succeeded")
	return &Result{Success: true, OutputPath: outputPath, Duration: duration}, nil
}
