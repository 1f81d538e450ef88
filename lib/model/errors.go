package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNoServiceDefinitions is returned when a device has nothing to resolve against.
	ErrNoServiceDefinitions = errors.New("device has no service definitions")
	// ErrNotStarted is returned by listener operations that need a running server.
	ErrNotStarted = errors.New("server is not started")
	// ErrNoPrivateAddress is returned when no private IPv4 address can be found locally.
	ErrNoPrivateAddress = errors.New("no private IPv4 address found")
	// ErrUnknownAction is returned when an action is not declared by the service.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownArgument is returned when an argument is not declared by the action.
	ErrUnknownArgument = errors.New("unknown argument")
	// ErrUnknownService is returned when a device does not offer a service type.
	ErrUnknownService = errors.New("unknown service")
)

// ValidationError reports a value rejected by an argument constraint
type ValidationError struct {
	Argument   string // Argument name, empty when validating a bare value
	Value      any    // The offending value
	Constraint string // Description of the violated constraint
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("argument %s: %v %s", e.Argument, e.Value, e.Constraint)
	}
	return fmt.Sprintf("%v %s", e.Value, e.Constraint)
}

// SchemaError reports an action-argument schema that cannot be turned into a validator
type SchemaError struct {
	DataType string // Declared UPnP data type, if any
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	msg := "invalid argument schema"
	if e.DataType != "" {
		msg = fmt.Sprintf("%s (type %q)", msg, e.DataType)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// TransportError reports a network or HTTP level failure talking to a device
type TransportError struct {
	URL        string // Target URL
	StatusCode int    // HTTP status code, 0 when no response was received
	Status     string // HTTP status line reason
	Err        error  // Underlying network error (optional)
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error calling %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport error calling %s: %d %s", e.URL, e.StatusCode, e.Status)
}

// Unwrap returns the underlying error for error unwrapping
func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteFaultError reports a SOAP Fault returned by a device
type RemoteFaultError struct {
	FaultCode            string
	FaultString          string
	UPnPErrorCode        int    // errorCode from the UPnPError detail, 0 if absent
	UPnPErrorDescription string // errorDescription from the UPnPError detail
}

// Error implements the error interface
func (e *RemoteFaultError) Error() string {
	if e.UPnPErrorCode != 0 {
		return fmt.Sprintf("soap fault %s: %s (upnp error %d: %s)",
			e.FaultCode, e.FaultString, e.UPnPErrorCode, e.UPnPErrorDescription)
	}
	return fmt.Sprintf("soap fault %s: %s", e.FaultCode, e.FaultString)
}

// ResolutionError reports that a device attribute could not be derived
type ResolutionError struct {
	UUID string
	What string // Attribute being resolved, e.g. "host"
	Err  error
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s of device %s: %v", e.What, e.UUID, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IllegalStateError reports an operation invoked in the wrong lifecycle state
type IllegalStateError struct {
	Op    string
	State string
	Err   error
}

// Error implements the error interface
func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state: cannot %s while %s", e.Op, e.State)
}

// Unwrap returns the underlying error for error unwrapping
func (e *IllegalStateError) Unwrap() error {
	return e.Err
}
