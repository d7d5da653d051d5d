// Package keystore holds the single active engine key shared by every
// engine invocation.
package keystore

import (
	"encoding/hex"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/guided-traffic/file-encryptor/internal/fault"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
)

// Store owns the active key. Readers get a consistent snapshot; writers
// replace the whole value. No history is kept.
type Store struct {
	current atomic.Pointer[string]
	logger  *logrus.Entry
}

// New creates a store initialized to defaultKey
func New(defaultKey string, logger *logrus.Entry) (*Store, error) {
	if defaultKey == "" {
		return nil, fault.New(fault.InvalidKey, "keystore", "default key must not be empty")
	}
	if logger == nil {
		logger = logrus.WithField("component", "keystore")
	}

	s := &Store{logger: logger}
	s.current.Store(&defaultKey)

	logger.WithField("fingerprint", Fingerprint(defaultKey)).Debug("Key store initialized with default key")
	return s, nil
}

// SetKey replaces the active key. An empty value is rejected and the
// previous key stays in effect.
func (s *Store) SetKey(newValue string) error {
	if newValue == "" {
		monitoring.RecordKeyUpdate("rejected")
		return fault.New(fault.InvalidKey, "set-key", "key must be a non-empty string")
	}

	previous := s.current.Swap(&newValue)

	s.logger.WithFields(logrus.Fields{
		"previous_fingerprint": Fingerprint(*previous),
		"fingerprint":          Fingerprint(newValue),
	}).Info("Encryption key updated")
	monitoring.RecordKeyUpdate("success")

	return nil
}

// CurrentKey returns the key in effect right now
func (s *Store) CurrentKey() string {
	return *s.current.Load()
}

// Fingerprint identifies a key in logs and results without revealing it
func Fingerprint(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
