// Package filepicker completes native "choose file" dialogs by running an
// external automation command (xdotool, osascript, a helper script).
package filepicker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"chatpilot/internal/domain"
)

// PathPlaceholder in a command template is replaced by the quoted file path.
// Templates may also refer to the path as "$1".
const PathPlaceholder = "{path}"

const maxOutput = 2048

// CommandPicker runs a shell command template for each file.
type CommandPicker struct {
	template string
	dir      string
	logger   *slog.Logger
}

var _ domain.FilePicker = (*CommandPicker)(nil)

type CommandConfig struct {
	// Template is run with sh -c, e.g.
	//   xdotool type --delay 20 {path} && xdotool key Return
	Template string
	Dir      string
	Logger   *slog.Logger
}

func NewCommandPicker(cfg CommandConfig) (*CommandPicker, error) {
	if strings.TrimSpace(cfg.Template) == "" {
		return nil, errors.New("file picker command is empty")
	}
	return &CommandPicker{template: cfg.Template, dir: cfg.Dir, logger: cfg.Logger}, nil
}

// Choose runs the template with path. The caller's ctx bounds the command;
// it is killed when ctx ends.
func (p *CommandPicker) Choose(ctx context.Context, path string) error {
	script := strings.ReplaceAll(p.template, PathPlaceholder, `"$1"`)
	cmd := exec.CommandContext(ctx, "sh", "-c", script, "chatpilot-picker", path)
	cmd.Dir = p.dir
	cmd.WaitDelay = 500 * time.Millisecond

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("file picker command: %w", ctx.Err())
		}
		out := strings.TrimSpace(string(output))
		if len(out) > maxOutput {
			out = out[:maxOutput] + "... (output truncated)"
		}
		return fmt.Errorf("file picker command: %w: %s", err, out)
	}
	p.logger.Debug("file picker command finished", "path", path, "elapsed", time.Since(start))
	return nil
}
