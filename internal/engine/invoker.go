// Package engine launches the external encryption engine, one child process
// per call, and classifies how it ended.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/keystore"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
)

// DefaultKeyEnv is the variable the engine reads its key material from
const DefaultKeyEnv = "ENCRYPTION_KEY"

// waitDelay bounds how long Wait keeps draining output after the child is
// killed or exits while a grandchild still holds its pipes.
const waitDelay = 5 * time.Second

// KeySource provides the key snapshot handed to each child
type KeySource interface {
	CurrentKey() string
}

// Config describes how to start the engine
type Config struct {
	Path    string        // engine executable
	Args    []string      // leading arguments placed before the positional command
	WorkDir string        // working directory of the child; storage paths are relative to it
	KeyEnv  string        // environment variable carrying the key
	Env     []string      // extra KEY=VALUE entries for the child
	Timeout time.Duration // 0 waits forever
}

// Result is the outcome of one engine run. Err is nil on exit code 0 and a
// *fault.Error otherwise.
type Result struct {
	Command        string
	ExitCode       int
	Stdout         string
	Stderr         string
	KeyFingerprint string
	StartedAt      time.Time
	Duration       time.Duration
	Err            error
}

// Success reports whether the engine exited with code 0
func (r *Result) Success() bool {
	return r.Err == nil
}

// Invoker starts the engine
type Invoker struct {
	cfg    Config
	keys   KeySource
	logger *logrus.Entry
}

// NewInvoker creates an invoker for the configured engine
func NewInvoker(cfg Config, keys KeySource, logger *logrus.Entry) (*Invoker, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key source is required")
	}
	if cfg.KeyEnv == "" {
		cfg.KeyEnv = DefaultKeyEnv
	}
	if logger == nil {
		logger = logrus.WithField("component", "engine-invoker")
	}

	return &Invoker{cfg: cfg, keys: keys, logger: logger}, nil
}

// Invoke runs the engine once and waits for it to exit. Cancelling ctx does
// not stop a child that has already been started; only the configured
// timeout does.
func (i *Invoker) Invoke(ctx context.Context, cmd Command) *Result {
	key := i.keys.CurrentKey()
	result := &Result{
		Command:        cmd.Name(),
		ExitCode:       -1,
		KeyFingerprint: keystore.Fingerprint(key),
		StartedAt:      time.Now(),
	}

	logger := i.logger.WithFields(logrus.Fields{
		"command":         result.Command,
		"key_fingerprint": result.KeyFingerprint,
	})

	runCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if i.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, i.cfg.Timeout)
	}
	defer cancel()

	args := make([]string, 0, len(i.cfg.Args)+1)
	args = append(args, i.cfg.Args...)
	if arg, ok := cmd.Argument(); ok {
		args = append(args, arg)
	}

	child := exec.CommandContext(runCtx, i.cfg.Path, args...)
	child.Dir = i.cfg.WorkDir
	child.Env = i.environment(key)
	child.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	child.Stdout = &stdout
	child.Stderr = &stderr
	if payload, ok := cmd.Payload(); ok {
		child.Stdin = strings.NewReader(payload)
	}

	logger.Debug("Starting engine process")

	if err := child.Start(); err != nil {
		result.Duration = time.Since(result.StartedAt)
		result.Err = fault.Wrap(fault.LaunchError, "invoke", fmt.Errorf("failed to start engine %s: %w", i.cfg.Path, err))
		logger.WithError(err).Error("Failed to start engine process")
		monitoring.RecordEngineInvocation(result.Command, string(fault.LaunchError), result.Duration)
		return result
	}

	waitErr := child.Wait()
	result.Duration = time.Since(result.StartedAt)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if child.ProcessState != nil {
		result.ExitCode = child.ProcessState.ExitCode()
	}

	result.Err = i.classify(runCtx, child, waitErr, result)

	status := "success"
	if result.Err != nil {
		status = string(fault.KindOf(result.Err))
		logger.WithError(result.Err).WithFields(logrus.Fields{
			"exit_code": result.ExitCode,
			"duration":  result.Duration,
		}).Warn("Engine process failed")
	} else {
		logger.WithFields(logrus.Fields{
			"exit_code": result.ExitCode,
			"duration":  result.Duration,
		}).Info("Engine process completed")
	}
	monitoring.RecordEngineInvocation(result.Command, status, result.Duration)

	return result
}

func (i *Invoker) classify(runCtx context.Context, child *exec.Cmd, waitErr error, result *Result) error {
	if waitErr == nil {
		return nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fault.Errorf(fault.Timeout, "invoke", "engine did not finish within %s and was terminated", i.cfg.Timeout)
	}

	// The child exited cleanly but something it spawned kept the output pipes open
	if errors.Is(waitErr, exec.ErrWaitDelay) && child.ProcessState != nil && child.ProcessState.Success() {
		i.logger.WithField("command", result.Command).Warn("Engine output pipes stayed open after exit")
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		msg := fmt.Sprintf("engine exited with code %d", exitErr.ExitCode())
		if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
			msg += ": " + stderr
		}
		return &fault.Error{
			Kind:     fault.EngineFailure,
			Op:       "invoke",
			Message:  msg,
			ExitCode: exitErr.ExitCode(),
		}
	}

	return fault.Wrap(fault.Internal, "invoke", waitErr)
}

// environment inherits the parent environment, applies the configured extras
// and pins the key variable to the snapshot.
func (i *Invoker) environment(key string) []string {
	prefix := i.cfg.KeyEnv + "="
	env := make([]string, 0, len(os.Environ())+len(i.cfg.Env)+1)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			env = append(env, kv)
		}
	}
	for _, kv := range i.cfg.Env {
		if !strings.HasPrefix(kv, prefix) {
			env = append(env, kv)
		}
	}
	return append(env, prefix+key)
}
