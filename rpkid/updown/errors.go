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

package updown

import (
	"errors"
	"fmt"
)

// Code is an error_response status code.
type Code int

// Status codes.
const (
	CodeAlreadyProcessing Code = 1101
	CodeVersion           Code = 1102
	CodeUnrecognizedType  Code = 1103
	CodeNoSuchClass       Code = 1201
	CodeNoResources       Code = 1202
	CodeBadRequest        Code = 1203
	CodeKeyInUse          Code = 1204
	CodeRevokeNoClass     Code = 1301
	CodeRevokeNoKey       Code = 1302
	CodeInternal          Code = 2001
)

// Error is a protocol error reported in an error_response.
type Error struct {
	Code        Code
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("up-down error %d: %s", e.Code, e.Description)
}

// ErrProtocol indicates a request that is rejected without a protocol
// reply: it is not authentic, it was replayed, or it is addressed to an
// unknown child.
var ErrProtocol = errors.New("up-down request rejected")
