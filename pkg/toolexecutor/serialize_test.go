package toolexecutor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialize(t *testing.T) {
	type record struct {
		ID     string  `json:"id"`
		Amount float64 `json:"amount"`
	}

	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{name: "string as is", in: "plain text", want: "plain text"},
		{name: "whole float", in: 120.0, want: "120"},
		{name: "fraction", in: 12.5, want: "12.5"},
		{name: "int", in: 7, want: "7"},
		{name: "bool", in: true, want: "true"},
		{name: "nil", in: nil, want: "null"},
		{name: "error", in: errors.New("oops"), want: "oops"},
		{name: "record", in: record{ID: "a", Amount: 3}, want: `{"id":"a","amount":3}`},
		{name: "empty list", in: []record{}, want: "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Serialize(tt.in))
		})
	}
}
