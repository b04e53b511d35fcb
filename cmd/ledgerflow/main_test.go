package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store != storeSQLite {
		t.Errorf("Store = %q, want %q", cfg.Store, storeSQLite)
	}
	if cfg.MaxChunk != 7*24*time.Hour {
		t.Errorf("MaxChunk = %v, want %v", cfg.MaxChunk, 7*24*time.Hour)
	}
	if cfg.MailStream != "ledgerflow:mail" {
		t.Errorf("MailStream = %q, want %q", cfg.MailStream, "ledgerflow:mail")
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("LEDGERFLOW_STORE", "postgres")
	t.Setenv("LEDGERFLOW_POSTGRES_URL", "postgres://localhost/ledgerflow")
	t.Setenv("LEDGERFLOW_MAX_CHUNK", "24h")
	t.Setenv("LEDGERFLOW_REMINDER_DELAY", "2h")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	eng := cfg.Engine()
	if eng.MaxChunk != 24*time.Hour {
		t.Errorf("MaxChunk = %v, want %v", eng.MaxChunk, 24*time.Hour)
	}
	if eng.ReminderDelay != 2*time.Hour {
		t.Errorf("ReminderDelay = %v, want %v", eng.ReminderDelay, 2*time.Hour)
	}
	if eng.DecisionDelay != 72*time.Hour {
		t.Errorf("DecisionDelay = %v, want %v", eng.DecisionDelay, 72*time.Hour)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "unknown store", env: map[string]string{"LEDGERFLOW_STORE": "mysql"}, want: "unknown store"},
		{name: "postgres without url", env: map[string]string{"LEDGERFLOW_STORE": "postgres"}, want: "LEDGERFLOW_POSTGRES_URL"},
		{name: "zero mail rate", env: map[string]string{"LEDGERFLOW_MAIL_RATE": "0"}, want: "LEDGERFLOW_MAIL_RATE"},
		{name: "bad duration", env: map[string]string{"LEDGERFLOW_MAX_CHUNK": "soon"}, want: "parse env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("loadConfig error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestMigrateCommand_SQLite(t *testing.T) {
	stderr = io.Discard
	t.Setenv("LEDGERFLOW_STORE", "sqlite")
	t.Setenv("LEDGERFLOW_SQLITE_PATH", filepath.Join(t.TempDir(), "ledgerflow.db"))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if got := out.String(); got != "sqlite store migrated\n" {
		t.Errorf("output = %q, want %q", got, "sqlite store migrated\n")
	}
}

func TestServeCommand_StopsWithContext(t *testing.T) {
	stderr = io.Discard
	t.Setenv("LEDGERFLOW_STORE", "memory")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"serve"})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(out.String(), "memory store") {
		t.Errorf("output = %q, want mention of the memory store", out.String())
	}
}
