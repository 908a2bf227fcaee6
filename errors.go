package asnrt

import (
	"errors"
	"fmt"

	"github.com/ansel1/merry"
	"github.com/gemalto/asnrt/tlv"
)

// The closed set of errors reported by the runtime.  Every error returned by
// this package satisfies Is against exactly one of these.
var (
	ErrInvalidTag           = tlv.ErrInvalidTag
	ErrInvalidLength        = tlv.ErrInvalidLength
	ErrInvalidInteger       = errors.New("invalid integer")
	ErrInvalidEnum          = errors.New("invalid enumerated value")
	ErrInvalidReal          = errors.New("invalid real")
	ErrOutOfMemory          = errors.New("out of memory")
	ErrInvalidTime          = errors.New("invalid time")
	ErrMissingComponent     = errors.New("missing component")
	ErrExtraComponent       = errors.New("extra component")
	ErrInvalidIndex         = errors.New("invalid index")
	ErrBufferOverflow       = errors.New("buffer overflow")
	ErrBufferUnderflow      = errors.New("buffer underflow")
	ErrInvalidEncodeRule    = errors.New("invalid encoding rule")
	ErrNullPointer          = errors.New("null pointer")
	ErrNotPermittedAlphabet = errors.New("character not in permitted alphabet")
	ErrNoMatchInfoObj       = errors.New("no matching information object")
	ErrInvalidSize          = errors.New("invalid size")
	ErrIO                   = errors.New("i/o error")
	ErrUnknown              = errors.New("unknown error")
	ErrAbstractFunction     = errors.New("converter does not support operation")
)

// ErrorCode is the numeric identity of an error kind.  Codes are stable, and
// are suitable for reporting across process or language boundaries.
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeInvalidTag
	CodeInvalidLength
	CodeInvalidInteger
	CodeInvalidEnum
	CodeInvalidReal
	CodeOutOfMemory
	CodeInvalidTime
	CodeMissingComponent
	CodeExtraComponent
	CodeInvalidIndex
	CodeBufferOverflow
	CodeBufferUnderflow
	CodeInvalidEncodeRule
	CodeNullPointer
	CodeNotPermittedAlphabet
	CodeNoMatchInfoObj
	_ // 17 was a licensing error, never reported
	CodeInvalidSize
	CodeIO
	CodeUnknown
	CodeAbstractFunction
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidTag, CodeInvalidTag},
	{ErrInvalidLength, CodeInvalidLength},
	{ErrInvalidInteger, CodeInvalidInteger},
	{ErrInvalidEnum, CodeInvalidEnum},
	{ErrInvalidReal, CodeInvalidReal},
	{ErrOutOfMemory, CodeOutOfMemory},
	{ErrInvalidTime, CodeInvalidTime},
	{ErrMissingComponent, CodeMissingComponent},
	{ErrExtraComponent, CodeExtraComponent},
	{ErrInvalidIndex, CodeInvalidIndex},
	{ErrBufferOverflow, CodeBufferOverflow},
	{ErrBufferUnderflow, CodeBufferUnderflow},
	{ErrInvalidEncodeRule, CodeInvalidEncodeRule},
	{ErrNullPointer, CodeNullPointer},
	{ErrNotPermittedAlphabet, CodeNotPermittedAlphabet},
	{ErrNoMatchInfoObj, CodeNoMatchInfoObj},
	{ErrInvalidSize, CodeInvalidSize},
	{ErrIO, CodeIO},
	{ErrUnknown, CodeUnknown},
	{ErrAbstractFunction, CodeAbstractFunction},
}

func (c ErrorCode) String() string {
	for _, e := range codes {
		if e.code == c {
			return e.err.Error()
		}
	}
	if c == CodeNone {
		return "none"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

type errKey int

const (
	errorKeyCode errKey = iota
)

func init() {
	merry.RegisterDetail("Code", errorKeyCode)
}

// CodeOf returns the code of the error kind err belongs to.  nil yields
// CodeNone, errors from outside the taxonomy yield CodeUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	if c, ok := merry.Value(err, errorKeyCode).(ErrorCode); ok {
		return c
	}
	for _, e := range codes {
		if merry.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}

func Is(err error, originals ...error) bool {
	return merry.Is(err, originals...)
}

func Details(err error) string {
	return merry.Details(err)
}

// Location returns the source location where err was raised.
func Location(err error) (file string, line int) {
	return merry.Location(err)
}

func errorf(kind error, format string, args ...interface{}) merry.Error {
	return merry.WrapSkipping(kind, 1).WithValue(errorKeyCode, CodeOf(kind)).Appendf(format, args...)
}

// classify ensures err belongs to the taxonomy.  Errors from collaborators
// (readers, writers, charset encoders) are wrapped as kind.
func classify(err error, kind error) error {
	if err == nil {
		return nil
	}
	for _, e := range codes {
		if merry.Is(err, e.err) {
			return err
		}
	}
	return merry.WrapSkipping(kind, 1).WithValue(errorKeyCode, CodeOf(kind)).WithCause(err).Append(err.Error())
}
