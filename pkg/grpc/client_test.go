package grpc

import (
	"context"
	"testing"
)

func TestGrpcCredsFromEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		addr     string
	}{
		{"https://oracle.example.com:443", "oracle.example.com:443"},
		{"http://localhost:7000", "localhost:7000"},
		{"localhost:7000", "localhost:7000"},
	}
	for _, tt := range tests {
		addr, opt := grpcCredsFromEndpoint(tt.endpoint)
		if addr != tt.addr {
			t.Fatalf("grpcCredsFromEndpoint(%q) addr = %q, want %q", tt.endpoint, addr, tt.addr)
		}
		if opt == nil {
			t.Fatalf("grpcCredsFromEndpoint(%q) returned nil option", tt.endpoint)
		}
	}
}

func TestNewQueryClient_UnknownMethod(t *testing.T) {
	client, err := NewQueryClient("localhost:1")
	if err != nil {
		t.Fatalf("NewQueryClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	if _, err := client.CallWithJSON(context.Background(), "Missing", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestNewClient_InvalidProto(t *testing.T) {
	if _, err := NewClient("localhost:1", map[string]string{"bad.proto": "message {"}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
}
