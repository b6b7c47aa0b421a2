package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

var (
	// ErrTransportUnavailable marks failures to reach the model server at all.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrModelNotFound marks a model identifier the server does not know.
	ErrModelNotFound = errors.New("model not found")
)

// modelNotFoundError carries the server's message for an unknown model.
type modelNotFoundError struct {
	message string
}

func (e *modelNotFoundError) Error() string { return e.message }

// Classify wraps err with ErrModelNotFound when the server rejected the model
// and with ErrTransportUnavailable when it could not be reached. Other errors
// are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrTransportUnavailable) || errors.Is(err, ErrModelNotFound) {
		return err
	}
	var notFound *modelNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, notFound.message)
	}
	if unreachable(err) {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return err
}

func unreachable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
