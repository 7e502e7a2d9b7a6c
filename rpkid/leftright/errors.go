// Copyright 2025 The OpenRPKI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package leftright

import (
	"errors"
	"fmt"
)

// ErrorCode is the error_code of a report_error element.
type ErrorCode string

// Error codes.
const (
	CodeObjectNotFound      ErrorCode = "object_not_found"
	CodeObjectAlreadyExists ErrorCode = "object_already_exists"
	CodeBadRequest          ErrorCode = "bad_request"
	CodeBadResources        ErrorCode = "bad_resources"
	CodeInternal            ErrorCode = "internal_error"
)

var (
	// ErrSchema indicates a message that violates the left-right schema.
	// Inbound, the whole message is rejected. Outbound, no reply is sent.
	ErrSchema = errors.New("schema violation")
	// ErrProtocol indicates a message that could not be authenticated.
	ErrProtocol = errors.New("left-right protocol error")
)

// Error is the failure of a single element. It is reported to the client
// as report_error.
type Error struct {
	Code   ErrorCode
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("left-right %s: %s", e.Code, e.Reason)
}

func notFound(element, handle string) *Error {
	return &Error{Code: CodeObjectNotFound, Reason: element + " " + handle + " not found"}
}

func alreadyExists(element, handle string) *Error {
	return &Error{Code: CodeObjectAlreadyExists,
		Reason: element + " " + handle + " already exists"}
}

func badRequest(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Reason: fmt.Sprintf(format, args...)}
}

func badResources(err error) *Error {
	return &Error{Code: CodeBadResources, Reason: err.Error()}
}
