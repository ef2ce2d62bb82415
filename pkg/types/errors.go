package types

import "fmt"

// DecodeError reports a malformed transaction or pool record. The record is skipped.
type DecodeError struct {
	TxHash string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.TxHash, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FetchError reports a remote call that exhausted its retry budget.
type FetchError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InvalidPoolStateError reports degenerate pool reserves or parameters. The pool is skipped.
type InvalidPoolStateError struct {
	Pool   string
	Reason string
}

func (e *InvalidPoolStateError) Error() string {
	if e.Pool == "" {
		return "invalid pool state: " + e.Reason
	}
	return fmt.Sprintf("invalid pool state %s: %s", e.Pool, e.Reason)
}

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
