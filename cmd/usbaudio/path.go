package main

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/viamrobotics/usbaudio/logging"
)

// commandPath switches audio by running a shell command, for example one that changes the
// default sink. Without a command it only logs.
type commandPath struct {
	internal string
	external string
	logger   logging.Logger
}

func (p *commandPath) ActivateInternal(ctx context.Context) error {
	p.logger.CInfow(ctx, "routing audio to internal speakers")
	return p.run(ctx, p.internal)
}

func (p *commandPath) ActivateExternal(ctx context.Context) error {
	p.logger.CInfow(ctx, "routing audio to external device")
	return p.run(ctx, p.external)
}

func (p *commandPath) run(ctx context.Context, command string) error {
	if command == "" {
		return nil
	}
	//nolint:gosec
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "running %q: %s", command, strings.TrimSpace(string(out)))
	}
	return nil
}
