package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("RAG_TOP_K", "")
	t.Setenv("VECTOR_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 50 {
		t.Fatalf("unexpected chunking defaults %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.RAGTopK != 5 || cfg.ContextMaxChars != 6000 {
		t.Fatalf("unexpected retrieval defaults %d/%d", cfg.RAGTopK, cfg.ContextMaxChars)
	}
	if cfg.EmbeddingDimension != domain.EmbeddingDimension {
		t.Fatalf("unexpected dimension %d", cfg.EmbeddingDimension)
	}
	if cfg.VectorBackend != VectorBackendQdrant {
		t.Fatalf("unexpected backend %q", cfg.VectorBackend)
	}
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "chunk_size: 300\nchunk_overlap: 30\nvector_backend: memory\nrag_top_k: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("VECTOR_BACKEND", "")
	t.Setenv("RAG_TOP_K", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 300 || cfg.ChunkOverlap != 30 {
		t.Fatalf("file values not applied: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.VectorBackend != VectorBackendMemory {
		t.Fatalf("unexpected backend %q", cfg.VectorBackend)
	}
	if cfg.RAGTopK != 9 {
		t.Fatalf("env should override file, got %d", cfg.RAGTopK)
	}
}

func TestLoadRejectsInvalidChunking(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHUNK_SIZE", "50")
	t.Setenv("CHUNK_OVERLAP", "50")

	_, err := Load()
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadRejectsLeaseShorterThanProcessTimeout(t *testing.T) {
	cases := []struct {
		name, lease, process string
	}{
		{name: "shorter", lease: "30", process: "600"},
		{name: "equal", lease: "600", process: "600"},
		{name: "unbounded run", lease: "900", process: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv("LEASE_TTL_SECONDS", tc.lease)
			t.Setenv("PROCESS_TIMEOUT_SECONDS", tc.process)

			_, err := Load()
			if !domain.IsKind(err, domain.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadAcceptsLeaseLongerThanProcessTimeout(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LEASE_TTL_SECONDS", "700")
	t.Setenv("PROCESS_TIMEOUT_SECONDS", "600")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LeaseTTLSeconds != 700 {
		t.Fatalf("unexpected lease ttl %d", cfg.LeaseTTLSeconds)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("VECTOR_BACKEND", "milvus")

	_, err := Load()
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestResilienceMapping(t *testing.T) {
	cfg := Default()
	cfg.RetryMaxAttempts = 5
	cfg.BreakerOpenTimeoutSecs = 12

	rc := cfg.Resilience()
	if rc.RetryMaxAttempts != 5 || rc.BreakerOpenTimeout.Seconds() != 12 || !rc.BreakerEnabled {
		t.Fatalf("unexpected resilience config %+v", rc)
	}
	if Seconds(0) != 0 {
		t.Fatalf("zero seconds should disable the bound")
	}
}
