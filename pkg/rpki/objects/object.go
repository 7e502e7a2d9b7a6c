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

// Package objects implements the RPKI object model: certificates, RSA keys,
// certification requests, CRLs and CMS signed objects (manifests, ROAs and
// Ghostbuster records).
//
// Every object holds exactly one source representation, for example DER
// bytes or the parsed Go structure, and computes the other representations
// on demand. DER is the hub of all conversions, and computed representations
// are cached. Objects are safe for concurrent use.
package objects

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Format identifies a representation of an object.
type Format int

const (
	// DER is the binary ASN.1 encoding, held as []byte.
	DER Format = iota
	// Parsed is the parsed Go structure, for example *x509.Certificate.
	Parsed
	// PEM is the textual armored encoding, held as []byte.
	PEM
	// Base64 is the unarmored base64 encoding of DER, held as string. It is
	// the form carried inside protocol messages.
	Base64
)

func (f Format) String() string {
	switch f {
	case DER:
		return "DER"
	case Parsed:
		return "parsed"
	case PEM:
		return "PEM"
	case Base64:
		return "base64"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ErrConversion is matched by every *ConversionError.
var ErrConversion = errors.New("conversion error")

// ConversionError indicates that a representation could not be produced.
type ConversionError struct {
	Kind   string
	From   Format
	To     Format
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("converting %s from %s to %s: %s", e.Kind, e.From, e.To, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes every ConversionError match ErrConversion.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// codec describes how one kind of object is parsed and serialized.
type codec[T any] struct {
	kind    string
	pem     PEMConverter
	parse   func([]byte) (T, error)
	marshal func(T) ([]byte, error)
}

// Object holds one source representation of a value of type T and caches
// representations derived from it. The zero value is empty; use the kind
// specific constructors to obtain an object with a codec.
type Object[T any] struct {
	codec *codec[T]

	mtx    sync.Mutex
	source Format
	memo   map[Format]any
}

func (o *Object[T]) init(c *codec[T], format Format, value any) error {
	o.codec = c
	return o.Set(format, value)
}

// Set replaces all representations with value in the given format. DER and
// PEM take []byte, Base64 takes string and Parsed takes T.
func (o *Object[T]) Set(format Format, value any) error {
	fail := func(reason string) error {
		return &ConversionError{Kind: o.kind(), From: format, To: format, Reason: reason}
	}
	switch format {
	case DER, PEM:
		b, ok := value.([]byte)
		if !ok {
			return fail(fmt.Sprintf("expected []byte, got %T", value))
		}
		if len(b) == 0 {
			return fail("empty value")
		}
		if format == PEM && !o.codec.pem.LooksLikePEM(b) {
			return fail("not PEM armored " + o.codec.pem.Type)
		}
	case Base64:
		s, ok := value.(string)
		if !ok {
			return fail(fmt.Sprintf("expected string, got %T", value))
		}
		if s == "" {
			return fail("empty value")
		}
	case Parsed:
		v, ok := value.(T)
		if !ok {
			return fail(fmt.Sprintf("expected %T, got %T", *new(T), value))
		}
		if isNil(v) {
			return fail("empty value")
		}
	default:
		return fail("unknown format")
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.source = format
	o.memo = map[Format]any{format: value}
	return nil
}

// Get returns the representation in the given format, computing and caching
// it if necessary.
func (o *Object[T]) Get(format Format) (any, error) {
	if o == nil {
		return nil, &ConversionError{Kind: "object", From: format, To: format,
			Reason: "object is empty"}
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.get(format)
}

func (o *Object[T]) get(format Format) (any, error) {
	if v, ok := o.memo[format]; ok {
		return v, nil
	}
	if len(o.memo) == 0 || o.codec == nil {
		return nil, &ConversionError{Kind: o.kind(), From: format, To: format,
			Reason: "object is empty"}
	}
	fail := func(reason string, err error) (any, error) {
		return nil, &ConversionError{Kind: o.kind(), From: o.source, To: format,
			Reason: reason, Err: err}
	}
	var der []byte
	if v, ok := o.memo[DER]; ok {
		der = v.([]byte)
	} else {
		var err error
		switch o.source {
		case PEM:
			der, err = o.codec.pem.ToDER(o.memo[PEM].([]byte))
		case Base64:
			der, err = base64.StdEncoding.DecodeString(o.memo[Base64].(string))
		case Parsed:
			der, err = o.codec.marshal(o.memo[Parsed].(T))
		default:
			return fail("no conversion path", nil)
		}
		if err != nil {
			return fail("decoding to DER", err)
		}
		o.memo[DER] = der
	}
	var v any
	switch format {
	case DER:
		return der, nil
	case PEM:
		v = o.codec.pem.ToPEM(der)
	case Base64:
		v = base64.StdEncoding.EncodeToString(der)
	case Parsed:
		parsed, err := o.codec.parse(der)
		if err != nil {
			return fail("parsing DER", err)
		}
		v = parsed
	default:
		return fail("unknown format", nil)
	}
	o.memo[format] = v
	return v, nil
}

// DER returns the DER encoding.
func (o *Object[T]) DER() ([]byte, error) {
	v, err := o.Get(DER)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// PEM returns the PEM encoding.
func (o *Object[T]) PEM() ([]byte, error) {
	v, err := o.Get(PEM)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Base64 returns the base64 encoding of the DER form.
func (o *Object[T]) Base64() (string, error) {
	v, err := o.Get(Base64)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Parsed returns the parsed structure.
func (o *Object[T]) Parsed() (T, error) {
	v, err := o.Get(Parsed)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Empty reports whether the object holds no representation.
func (o *Object[T]) Empty() bool {
	if o == nil {
		return true
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return len(o.memo) == 0
}

func (o *Object[T]) kind() string {
	if o.codec == nil {
		return "object"
	}
	return o.codec.kind
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
