package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "postgres", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: "sqlite", DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir is valid at config level",
			config:  Config{Backend: "sqlite", DataDir: ""},
			wantErr: nil,
		},
		{
			name:    "partition with separator is rejected",
			config:  Config{Backend: "sqlite", Partition: "a/b"},
			wantErr: ErrPartitionInvalid,
		},
		{
			name:    "dot-dot partition is rejected",
			config:  Config{Backend: "sqlite", Partition: ".."},
			wantErr: ErrPartitionInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigPartitionName(t *testing.T) {
	if got := (Config{}).PartitionName(); got != DefaultPartition {
		t.Errorf("expected %q, got %q", DefaultPartition, got)
	}
	if got := (Config{Partition: "u1"}).PartitionName(); got != "u1" {
		t.Errorf("expected u1, got %q", got)
	}
}
