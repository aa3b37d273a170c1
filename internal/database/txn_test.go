package database

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "generic error", err: errors.New("connection refused"), want: false},
		{
			name: "standalone server",
			err:  mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"},
			want: true,
		},
		{name: "illegal operation code", err: mongo.CommandError{Code: 51, Message: "x"}, want: true},
		{name: "unsupported in transaction", err: mongo.CommandError{Code: 263, Message: "x"}, want: true},
		{name: "other command error", err: mongo.CommandError{Code: 11000, Message: "duplicate key"}, want: false},
		{name: "wrapped command error", err: fmt.Errorf("purge: %w", mongo.CommandError{Code: 20}), want: true},
		{name: "keywords", err: errors.New("Session operations are NOT SUPPORTED here"), want: true},
		{name: "single keyword", err: errors.New("transaction aborted"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
