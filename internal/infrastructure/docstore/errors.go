package docstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// isConnectivity reports transport-level failures common to all backends
func isConnectivity(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	case errors.Is(err, driver.ErrBadConn):
		return true
	}
	return false
}

// wrapBackend tags err with ErrPermissionDenied or ErrUnavailable when it
// matches, leaving context cancellation and other errors as they are.
func wrapBackend(op string, err error, permission func(error) bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if permission != nil && permission(err) {
		return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, op, err)
	}
	if isConnectivity(err) {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	return fmt.Errorf("docstore: %s: %w", op, err)
}

// hasAnyPrefix reports whether the error text starts with one of prefixes
func hasAnyPrefix(err error, prefixes ...string) bool {
	msg := err.Error()
	for _, p := range prefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}
