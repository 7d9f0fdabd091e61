package main

import (
	"net"
	"testing"
	"time"
)

func TestParseTCPKeepAlive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{
			input: "on",
			want:  net.KeepAliveConfig{Enable: true},
		},
		{
			input: "OFF",
			want:  net.KeepAliveConfig{},
		},
		{
			input: "45s:45s:3",
			want:  net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3},
		},
		{
			input: "45:45:3",
			want:  net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3},
		},
		{
			input: "2m:30s:5",
			want:  net.KeepAliveConfig{Enable: true, Idle: 2 * time.Minute, Interval: 30 * time.Second, Count: 5},
		},
		{input: "", wantErr: true},
		{input: "45:45", wantErr: true},
		{input: "0s:45s:3", wantErr: true},
		{input: "45s:fast:3", wantErr: true},
		{input: "45s:45s:0", wantErr: true},
		{input: "45s:45s:x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseTCPKeepAlive(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}
