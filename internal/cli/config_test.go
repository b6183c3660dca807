package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/hllm/internal/model"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if len(cfg.Providers) != 8 {
		t.Errorf("expected 8 providers, got %d", len(cfg.Providers))
	}
	if cfg.Providers[0].Name != "OpenAI" || cfg.Providers[7].Name != "Grok" {
		t.Errorf("unexpected provider order: %s ... %s", cfg.Providers[0].Name, cfg.Providers[7].Name)
	}
	if cfg.Orchestrator.AdapterTimeout != 20*time.Second {
		t.Errorf("expected adapter timeout 20s, got %v", cfg.Orchestrator.AdapterTimeout)
	}
	if cfg.Scoring.Weights.Sum() != 1 {
		t.Errorf("expected weights to sum to 1, got %v", cfg.Scoring.Weights.Sum())
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	resetViper(t)
	viper.SetEnvPrefix("HLLM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	t.Setenv("HLLM_ORCHESTRATOR_ADAPTER_TIMEOUT", "5s")
	t.Setenv("HLLM_LOGGING_LEVEL", "debug")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Orchestrator.AdapterTimeout != 5*time.Second {
		t.Errorf("expected adapter timeout 5s, got %v", cfg.Orchestrator.AdapterTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected logging level debug, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "logging:\n  level: loud\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	if _, err := loadConfig(); err == nil {
		t.Error("expected validation error for unknown logging level")
	}
}

func TestDefaultConfigFile_RoundTrip(t *testing.T) {
	resetViper(t)

	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "adapter_timeout: 20s") {
		t.Errorf("expected readable duration in generated config, got:\n%s", data)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected cache ttl 1h, got %v", cfg.Cache.TTL)
	}
	if cfg.Conversation.TTL != 24*time.Hour {
		t.Errorf("expected conversation ttl 24h, got %v", cfg.Conversation.TTL)
	}
	if len(cfg.Providers) != 8 {
		t.Errorf("expected 8 providers, got %d", len(cfg.Providers))
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/.hllm/cache", filepath.Join(home, ".hllm/cache")},
		{"~", home},
		{"/var/lib/hllm", "/var/lib/hllm"},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		if got := expandHome(tt.in); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAppClose_ReverseOrder(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	a := &app{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	}}

	err := a.Close()
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to contain boom, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("expected closers in reverse order, got %v", order)
	}
}
