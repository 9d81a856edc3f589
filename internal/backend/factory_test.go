package backend

import (
	"context"
	"path/filepath"
	"testing"

	"fintrack/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"memory", "memory", false},
		{"sqlite", "sqlite", false},
		{"postgres", "postgres", false},
		{"sheets is gone", "sheets", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromAppConfig(&config.Config{DataBackend: tt.backend, SQLiteDBPath: "x.db"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.Type.String() != tt.backend {
				t.Fatalf("type = %s", cfg.Type)
			}
		})
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"postgres with url", Config{Type: PostgresBackend, PostgresURL: "postgres://localhost/db"}, false},
		{"unknown", Config{Type: "mongo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if err := res.Store.Ping(ctx); err != nil {
		t.Fatalf("ping memory: %v", err)
	}

	res, err = f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "f.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer res.Cleanup()
	if err := res.Store.Ping(ctx); err != nil {
		t.Fatalf("ping sqlite: %v", err)
	}

	if _, err := f.CreateBackend(ctx, Config{Type: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 3 || got[0] != "sqlite" || got[1] != "postgres" || got[2] != "memory" {
		t.Fatalf("unexpected backend types %v", got)
	}
}
