package cs

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a non-success response from the remote catalog.
type TransportError struct {
	Method  string
	URL     string
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Message)
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.Status, msg)
}

// IsTransportError reports whether err wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ConfigurationError is fatal at startup: a missing or invalid config key,
// or a kind registered without the fields the store needs.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if e.Key == "" {
		return "configuration error: " + reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// MirrorError is a failure replicating an artifact that was already written
// locally. The item stays pending and is retried next cycle.
type MirrorError struct {
	Key string
	Err error
}

func (e *MirrorError) Error() string { return fmt.Sprintf("mirroring %s: %v", e.Key, e.Err) }

func (e *MirrorError) Unwrap() error { return e.Err }

// isItemError reports whether err only affects the item being materialized.
func isItemError(err error) bool {
	var me *MirrorError
	return IsTransportError(err) || errors.As(err, &me)
}
