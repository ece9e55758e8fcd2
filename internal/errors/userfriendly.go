package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and
// hints. It is a CLI-boundary concern only: library callers should type-assert
// against the taxonomy in errors.go, not against this type.
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps transport-level errors with user-friendly context.
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("failed to communicate with %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "the board may be powered off, unreachable, or SCAMP may not be booted",
		Try:     fmt.Sprintf("check that %s:%d is reachable, then retry: spinnman discover", host, port),
		Err:     err,
	}
}

// WrapSCPError wraps SCP protocol errors with user-friendly context.
func WrapSCPError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("SCP operation failed: %s", operation),
		Reason:  extractSCPReason(err),
		Hint:    "the chip may be unresponsive, or the destination coordinates may be wrong",
		Try:     "check the machine topology with: spinnman discover",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context.
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "spinnman writes a default spinnman.yaml when the config file is missing",
		Try:     fmt.Sprintf("fix or remove %s and rerun the command", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "connection timeout - board may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "connection refused - nothing listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "no route to host - network routing issue or board unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "connection reset - peer closed the connection unexpectedly"
	}

	return "network communication failed"
}

func extractSCPReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "result_code") {
		return "SCAMP returned a non-OK result code"
	}
	if strings.Contains(errStr, "malformed") {
		return "received an invalid or malformed response from the board"
	}
	if strings.Contains(errStr, "timeout") {
		return "chip did not respond within timeout period"
	}

	return "SCP protocol error occurred"
}
