// Copyright 2019 Anapaya Systems
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

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	cause := errors.New("cause")

	testCases := map[string]struct {
		err    error
		target error
		is     bool
	}{
		"wrap is cause": {
			err:    serrors.Wrap("msg", cause),
			target: cause,
			is:     true,
		},
		"join is base": {
			err:    serrors.Join(sentinel, cause),
			target: sentinel,
			is:     true,
		},
		"join is cause": {
			err:    serrors.Join(sentinel, cause),
			target: cause,
			is:     true,
		},
		"join without cause": {
			err:    serrors.JoinNoStack(sentinel, nil, "k", "v"),
			target: sentinel,
			is:     true,
		},
		"new is not sentinel": {
			err:    serrors.New("sentinel"),
			target: sentinel,
			is:     false,
		},
		"list contains": {
			err:    serrors.List{errors.New("a"), serrors.Wrap("b", cause)},
			target: cause,
			is:     true,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.is, errors.Is(tc.err, tc.target))
		})
	}
}

func TestErrorString(t *testing.T) {
	err := serrors.Wrap("storing entity", errors.New("disk full"), "table", "child", "id", 5)
	assert.Equal(t, "storing entity {id=5; table=child}: disk full", err.Error())

	joined := serrors.JoinNoStack(errors.New("base"), nil, "k", 1)
	assert.Equal(t, "base {k=1}", joined.Error())
}

func TestJoinNil(t *testing.T) {
	assert.NoError(t, serrors.Join(nil, nil))
	assert.NoError(t, serrors.JoinNoStack(nil, nil))
}

func TestStackTrace(t *testing.T) {
	err := serrors.New("boom")
	var st interface{ StackTrace() serrors.StackTrace }
	require.True(t, errors.As(err, &st))
	require.NotEmpty(t, st.StackTrace())
	assert.Contains(t, st.StackTrace().String(), "TestStackTrace")

	noStack := serrors.WrapNoStack("quiet", errors.New("x"))
	require.True(t, errors.As(noStack, &st))
	assert.Nil(t, st.StackTrace())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, serrors.IsTimeout(serrors.Wrap("dial", timeoutErr{})))
	assert.False(t, serrors.IsTimeout(errors.New("x")))
}

func TestMarshalLogObject(t *testing.T) {
	err := serrors.Wrap("msg", serrors.New("inner"), "key", "value")
	enc := zapcore.NewMapObjectEncoder()
	m, ok := err.(zapcore.ObjectMarshaler)
	require.True(t, ok)
	require.NoError(t, m.MarshalLogObject(enc))
	assert.Equal(t, "msg", enc.Fields["msg"])
	assert.Equal(t, "value", enc.Fields["key"])
	assert.Contains(t, enc.Fields, "cause")
}

func TestListToError(t *testing.T) {
	var l serrors.List
	assert.NoError(t, l.ToError())
	l = append(l, errors.New("a"), errors.New("b"))
	assert.EqualError(t, l.ToError(), "[ a; b ]")
}
