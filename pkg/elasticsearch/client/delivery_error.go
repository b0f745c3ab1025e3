package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type DeliveryErrorClass int

const (
	// TransientError covers timeouts, connection failures, and 5xx responses.
	// Retrying has a reasonable chance of succeeding.
	TransientError DeliveryErrorClass = iota
	// FatalError covers 4xx responses such as auth rejections and mapping
	// validation failures. Blind retry will not help, but the records are
	// still queued up to the retry bound rather than silently dropped.
	FatalError
)

func (c DeliveryErrorClass) String() string {
	if c == FatalError {
		return "fatal"
	}
	return "transient"
}

// DeliveryError is the classified failure of one batch delivery attempt.
type DeliveryError struct {
	Class      DeliveryErrorClass
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery error (status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery error: %v", e.Class, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func newTransportDeliveryError(err error) *DeliveryError {
	return &DeliveryError{Class: TransientError, Err: err}
}

// classifyStatus maps an HTTP response status to an error class. 429 is
// backpressure from the cluster, so it stays retryable.
func classifyStatus(statusCode int) DeliveryErrorClass {
	if statusCode >= 500 || statusCode == 429 {
		return TransientError
	}
	return FatalError
}

// IsTransient reports whether err is a delivery error worth retrying soon.
// Transport-level failures that never produced a response count as transient.
func IsTransient(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Class == TransientError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
