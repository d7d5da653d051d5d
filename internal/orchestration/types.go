package orchestration

import "time"

// Operation kinds, also used as metric labels
const (
	KindCreateCorpus = "create-test-files"
	KindEncryptOne   = "encrypt-file"
	KindDecryptOne   = "decrypt-file"
	KindEncryptAll   = "encrypt-all"
	KindDecryptAll   = "decrypt-all"
)

// Request is one operation asked of the engine. The set of variants is
// closed: CreateCorpus, EncryptOne, DecryptOne, EncryptAll, DecryptAll.
type Request interface {
	Kind() string
	isRequest()
}

// CreateCorpus asks the engine to generate the seed files
type CreateCorpus struct{}

// EncryptOne encrypts a single file addressed as "<root>/<name>"
type EncryptOne struct{ Path string }

// DecryptOne decrypts a single file addressed as "<root>/<name>"
type DecryptOne struct{ Path string }

// EncryptAll encrypts every file the engine knows about
type EncryptAll struct{}

// DecryptAll decrypts every file the engine knows about
type DecryptAll struct{}

func (CreateCorpus) Kind() string { return KindCreateCorpus }
func (EncryptOne) Kind() string   { return KindEncryptOne }
func (DecryptOne) Kind() string   { return KindDecryptOne }
func (EncryptAll) Kind() string   { return KindEncryptAll }
func (DecryptAll) Kind() string   { return KindDecryptAll }

func (CreateCorpus) isRequest() {}
func (EncryptOne) isRequest()   {}
func (DecryptOne) isRequest()   {}
func (EncryptAll) isRequest()   {}
func (DecryptAll) isRequest()   {}

// Outcome of an operation
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Result represents the result of one operation. Err is set on failure and
// is always a *fault.Error.
type Result struct {
	ID             string        `json:"id"`
	Kind           string        `json:"kind"`
	Outcome        Outcome       `json:"outcome"`
	Output         string        `json:"output"`
	ErrorOutput    string        `json:"errorOutput"`
	ExitCode       int           `json:"exitCode"`
	KeyFingerprint string        `json:"keyFingerprint,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"-"`
	Err            error         `json:"-"`
}

// Succeeded reports whether the engine ran and exited with code 0
func (r *Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
