package engine

import (
	"fmt"
	"strings"
)

// Positional commands understood by the engine
const (
	ArgCreateTestFiles = "create-test-files"
	ArgProcessAll      = "process-all"
	ArgDecryptAll      = "decrypt-all"
)

// Direction selects the transform applied to a single file
type Direction string

const (
	Encrypt Direction = "encrypt"
	Decrypt Direction = "decrypt"
)

// ParseDirection accepts the two literal tokens of the stdin protocol
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Encrypt, Decrypt:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown direction %q (expected encrypt or decrypt)", s)
}

// Command is one engine invocation: either a positional argument or a
// stdin payload, never both. The zero value runs the engine bare.
type Command struct {
	argument string
	payload  string
	piped    bool
}

// Positional runs the engine with a single positional argument
func Positional(arg string) Command {
	return Command{argument: arg}
}

// Piped runs the engine without arguments and feeds payload on stdin
func Piped(payload string) Command {
	return Command{payload: payload, piped: true}
}

// CreateTestFiles asks the engine to generate the seed corpus
func CreateTestFiles() Command {
	return Positional(ArgCreateTestFiles)
}

// ProcessAll asks the engine to encrypt every file it knows about
func ProcessAll() Command {
	return Positional(ArgProcessAll)
}

// DecryptAll asks the engine to decrypt every file it knows about
func DecryptAll() Command {
	return Positional(ArgDecryptAll)
}

// Transform addresses one file. The engine reads the path and the
// direction as two newline-terminated lines.
func Transform(path string, dir Direction) Command {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(string(dir))
	b.WriteByte('\n')
	return Piped(b.String())
}

// Argument returns the positional argument, if any
func (c Command) Argument() (string, bool) {
	return c.argument, c.argument != ""
}

// Payload returns the stdin payload, if any
func (c Command) Payload() (string, bool) {
	return c.payload, c.piped
}

// Name is a stable label for logs and metrics
func (c Command) Name() string {
	switch {
	case c.argument != "":
		return c.argument
	case c.piped:
		return "stdin"
	default:
		return "bare"
	}
}
