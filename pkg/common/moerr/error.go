// Copyright 2024 VexDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	stderrors "errors"
	"fmt"

	"github.com/pingcap/errors"
)

const (
	// Ok is not an error.
	Ok uint16 = 0

	// Group 1: internal errors.
	ErrInternal uint16 = 20101
	ErrNYI      uint16 = 20102
	ErrOOM      uint16 = 20103

	// Group 2: invalid input. Contract violations by the caller land here;
	// they indicate a planner or operator bug, not a runtime condition.
	ErrInvalidInput        uint16 = 20301
	ErrConstraintViolation uint16 = 20304

	// Group 3: unexpected state.
	ErrInvalidState   uint16 = 20400
	ErrShortBuffer    uint16 = 20414
	ErrTooLargeObject uint16 = 20415
)

var errorNames = map[uint16]string{
	ErrInternal:            "internal error",
	ErrNYI:                 "not yet implemented",
	ErrOOM:                 "out of memory",
	ErrInvalidInput:        "invalid input",
	ErrConstraintViolation: "constraint violation",
	ErrInvalidState:        "invalid state",
	ErrShortBuffer:         "short buffer",
	ErrTooLargeObject:      "too large object",
}

// Error is the coded error type used everywhere in the engine.
// The code classifies the failure; the message carries the detail.
type Error struct {
	code    uint16
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", errorNames[e.code], e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", errorNames[e.code], e.message)
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code uint16, message string) error {
	return errors.AddStack(&Error{code: code, message: message})
}

// IsMoErrCode reports whether err carries the given error code.
func IsMoErrCode(err error, code uint16) bool {
	if err == nil {
		return code == Ok
	}
	var me *Error
	if !stderrors.As(err, &me) {
		return false
	}
	return me.code == code
}

func NewInternalError(msg string) error {
	return newError(ErrInternal, msg)
}

func NewInternalErrorf(format string, args ...any) error {
	return newError(ErrInternal, fmt.Sprintf(format, args...))
}

func NewNYIf(format string, args ...any) error {
	return newError(ErrNYI, fmt.Sprintf(format, args...))
}

// NewOOM reports that an allocation pushed the pool past its cap.
func NewOOM(pool string, want, cap int64) error {
	return newError(ErrOOM, fmt.Sprintf("pool %s: need %d bytes, cap %d", pool, want, cap))
}

func NewInvalidInput(msg string) error {
	return newError(ErrInvalidInput, msg)
}

func NewInvalidInputf(format string, args ...any) error {
	return newError(ErrInvalidInput, fmt.Sprintf(format, args...))
}

func NewConstraintViolationf(format string, args ...any) error {
	return newError(ErrConstraintViolation, fmt.Sprintf(format, args...))
}

func NewInvalidStatef(format string, args ...any) error {
	return newError(ErrInvalidState, fmt.Sprintf(format, args...))
}

// NewShortBuffer reports a destination buffer smaller than the data
// requested into it. Always a caller bug.
func NewShortBuffer(want, got int) error {
	return newError(ErrShortBuffer, fmt.Sprintf("need %d bytes, destination holds %d", want, got))
}

func NewTooLargeObjectf(format string, args ...any) error {
	return newError(ErrTooLargeObject, fmt.Sprintf(format, args...))
}

// AttachCause wraps an underlying error while keeping the code.
func AttachCause(err error, cause error) error {
	var me *Error
	if stderrors.As(err, &me) {
		me.cause = cause
		return err
	}
	return errors.AddStack(err)
}
