package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/localcoder/internal/config"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelemetryConfig
	}{
		{"disabled", config.TelemetryConfig{Endpoint: "localhost:4317"}},
		{"no endpoint", config.TelemetryConfig{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), tt.cfg, "test")
			if err != nil {
				t.Fatal(err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("shutdown: %v", err)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TelemetryConfig
		wantErr bool
	}{
		{"grpc", config.TelemetryConfig{Endpoint: "127.0.0.1:4317", Protocol: "grpc", Insecure: true}, false},
		{"default protocol", config.TelemetryConfig{Endpoint: "127.0.0.1:4317", Insecure: true}, false},
		{"http with headers", config.TelemetryConfig{Endpoint: "127.0.0.1:4318", Protocol: "http", Insecure: true, Headers: map[string]string{"x-key": "v"}}, false},
		{"unknown protocol", config.TelemetryConfig{Endpoint: "127.0.0.1:4317", Protocol: "zipkin"}, true},
		{"missing endpoint", config.TelemetryConfig{Protocol: "grpc"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := NewProvider(context.Background(), tt.cfg, "")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			// Nothing was recorded, so shutdown has nothing to send.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			tp.Shutdown(ctx)
		})
	}
}
