// core_errors.go - closed error-kind set for the CORE tile rasterizer

package main

import "fmt"

// ErrorKind is a closed set; render() never returns an error outside it.
type ErrorKind int

const (
	ConfigurationUnsupported ErrorKind = iota
	MalformedList
	AddressOutOfRange
	NumericDomain
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationUnsupported:
		return "configuration unsupported"
	case MalformedList:
		return "malformed list"
	case AddressOutOfRange:
		return "address out of range"
	case NumericDomain:
		return "numeric domain"
	default:
		return "unknown error kind"
	}
}

// CoreError carries a closed Kind plus context. Only ConfigurationUnsupported
// aborts a frame; the others are collected as warnings and the frame
// continues, except that Core.Render returns MalformedList when the region
// array never terminates.
type CoreError struct {
	Kind ErrorKind
	Msg  string
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("pvrcore: %s: %s", e.Kind, e.Msg)
}

func newCoreError(kind ErrorKind, format string, args ...any) *CoreError {
	return &CoreError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// fatal reports whether an error of this kind must abort the current frame.
func (k ErrorKind) fatal() bool {
	return k == ConfigurationUnsupported
}
