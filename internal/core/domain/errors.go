package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound      = errors.New("no device found")
	ErrReadUnavailable     = errors.New("read unavailable")
	ErrWriteRejected       = errors.New("write rejected")
	ErrAllStrategiesFailed = errors.New("all actuation strategies failed")
	ErrConfigInvalid       = errors.New("invalid configuration")

	ErrBusNotFound = errors.New("bus item not found")
	ErrBusWrite    = errors.New("bus item write failed")
)

type BusErrorKind int

const (
	BusNotFound BusErrorKind = iota
	BusWriteError
)

// BusError is returned by bus adapters for every failed item access.
type BusError struct {
	Kind      BusErrorKind
	ServiceID string
	Path      string
	Err       error
}

func NewNotFound(serviceID, path string, err error) *BusError {
	return &BusError{Kind: BusNotFound, ServiceID: serviceID, Path: path, Err: err}
}

func NewWriteError(serviceID, path string, err error) *BusError {
	return &BusError{Kind: BusWriteError, ServiceID: serviceID, Path: path, Err: err}
}

func (e *BusError) Error() string {
	op := "read"
	if e.Kind == BusWriteError {
		op = "write"
	}
	if e.Err != nil {
		return fmt.Sprintf("bus %s %s%s: %v", op, e.ServiceID, e.Path, e.Err)
	}
	return fmt.Sprintf("bus %s %s%s failed", op, e.ServiceID, e.Path)
}

func (e *BusError) Unwrap() []error {
	kind := ErrBusNotFound
	if e.Kind == BusWriteError {
		kind = ErrBusWrite
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}
