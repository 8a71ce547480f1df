// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: io.EOF, want: ""},
		{name: "typed", err: New(Timeout, "slow"), want: Timeout},
		{name: "wrapped by fmt", err: fmt.Errorf("ask: %w", New(AuthFailed, "bad token")), want: AuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapUnwraps(t *testing.T) {
	err := Wrap(Connection, "dial", io.ErrUnexpectedEOF)
	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, Is(err, Connection))
	assert.Equal(t, "connection_error: dial: unexpected EOF", err.Error())
}
