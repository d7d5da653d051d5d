// Package orchestration turns operation requests into engine invocations,
// one at a time.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/engine"
	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
)

// Invoker runs one engine command
type Invoker interface {
	Invoke(ctx context.Context, cmd engine.Command) *engine.Result
}

// Files checks that a root-qualified path names an existing file
type Files interface {
	Resolve(rel string) (string, error)
}

// Manager executes operations. A single gate serializes every engine
// invocation across callers, since the engine works on shared files.
type Manager struct {
	invoker Invoker
	files   Files
	gate    chan struct{}
	logger  *logrus.Entry
}

// NewManager creates an operation manager
func NewManager(invoker Invoker, files Files, logger *logrus.Entry) (*Manager, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker cannot be nil")
	}
	if files == nil {
		return nil, fmt.Errorf("file registry cannot be nil")
	}
	if logger == nil {
		logger = logrus.WithField("component", "operation-manager")
	}

	return &Manager{
		invoker: invoker,
		files:   files,
		gate:    make(chan struct{}, 1),
		logger:  logger,
	}, nil
}

// Execute runs req to completion and always returns a result. ctx bounds
// only the wait for the gate; a started engine run is not interrupted.
func (m *Manager) Execute(ctx context.Context, req Request) *Result {
	res := &Result{
		ID:        uuid.NewString(),
		Kind:      req.Kind(),
		ExitCode:  -1,
		StartedAt: time.Now(),
	}

	logger := m.logger.WithFields(logrus.Fields{
		"operation_id": res.ID,
		"kind":         res.Kind,
	})
	logger.Debug("Operation received")

	monitoring.OperationsInFlight.Inc()
	defer monitoring.OperationsInFlight.Dec()

	cmd, err := m.plan(req)
	if err != nil {
		return m.fail(logger, res, err)
	}

	select {
	case m.gate <- struct{}{}:
	case <-ctx.Done():
		return m.fail(logger, res, fault.Wrap(fault.Timeout, "execute",
			fmt.Errorf("gave up waiting for the engine: %w", ctx.Err())))
	}
	defer func() { <-m.gate }()

	logger.WithField("command", cmd.Name()).Debug("Operation invoking engine")
	out := m.invoker.Invoke(ctx, cmd)

	res.Output = out.Stdout
	res.ErrorOutput = out.Stderr
	res.ExitCode = out.ExitCode
	res.KeyFingerprint = out.KeyFingerprint

	if out.Err != nil {
		return m.fail(logger, res, out.Err)
	}

	res.Outcome = OutcomeSuccess
	res.Duration = time.Since(res.StartedAt)
	monitoring.RecordOperation(res.Kind, string(res.Outcome), res.Duration)

	logger.WithFields(logrus.Fields{
		"key_fingerprint": res.KeyFingerprint,
		"duration":        res.Duration,
	}).Debug("Operation completed")

	return res
}

// plan maps a request to its engine command, resolving single-file paths
// first so a missing file never reaches the engine.
func (m *Manager) plan(req Request) (engine.Command, error) {
	switch r := req.(type) {
	case CreateCorpus:
		return engine.CreateTestFiles(), nil
	case EncryptAll:
		return engine.ProcessAll(), nil
	case DecryptAll:
		return engine.DecryptAll(), nil
	case EncryptOne:
		return m.transform(r.Path, engine.Encrypt)
	case DecryptOne:
		return m.transform(r.Path, engine.Decrypt)
	default:
		return engine.Command{}, fault.Errorf(fault.InvalidRequest, "execute", "unsupported operation %T", req)
	}
}

func (m *Manager) transform(path string, dir engine.Direction) (engine.Command, error) {
	if _, err := m.files.Resolve(path); err != nil {
		return engine.Command{}, err
	}
	return engine.Transform(path, dir), nil
}

func (m *Manager) fail(logger *logrus.Entry, res *Result, err error) *Result {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		err = fault.Wrap(fault.Internal, "execute", err)
	}

	res.Outcome = OutcomeFailure
	res.Err = err
	res.Duration = time.Since(res.StartedAt)
	monitoring.RecordOperation(res.Kind, string(res.Outcome), res.Duration)

	logger.WithError(err).WithFields(logrus.Fields{
		"error_kind": fault.KindOf(err),
		"exit_code":  res.ExitCode,
	}).Debug("Operation completed")

	return res
}
