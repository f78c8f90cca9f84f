// Package apperr defines the error taxonomy shared across services.
// Handlers map these onto HTTP status codes; everything else wraps with %w.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed request input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError for a resource instance.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// LedgerError is the single condition surfaced for any failed ledger
// interaction: transport failures, RPC error payloads and rejected
// transactions all land here. Retryable is true only for transient
// transport-level failures; ledger rejections are terminal.
type LedgerError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger call %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Ledger wraps a terminal ledger failure.
func Ledger(op string, err error) error {
	return &LedgerError{Op: op, Err: err}
}

// LedgerTransient wraps a transient (retryable) ledger failure.
func LedgerTransient(op string, err error) error {
	return &LedgerError{Op: op, Retryable: true, Err: err}
}

// ConfigError reports an invalid deployment configuration. It is fatal at
// process start and never produced per-request.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Msg)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// Config builds a ConfigError for a single field.
func Config(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsLedger reports whether err is (or wraps) a LedgerError.
func IsLedger(err error) bool {
	var l *LedgerError
	return errors.As(err, &l)
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var c *ConfigError
	return errors.As(err, &c)
}

// IsRetryable reports whether err is a transient ledger failure.
func IsRetryable(err error) bool {
	var l *LedgerError
	return errors.As(err, &l) && l.Retryable
}
