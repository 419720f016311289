// Package config loads server configuration from the environment. MCP
// hosts pass settings through the env block of their server registry
// entry, so flags would go unused.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Config is the full server configuration.
type Config struct {
	// ArchetypePath points at the YAML archetype compiled at startup.
	ArchetypePath string

	StorageBackend string
	DataDir        string // sqlite
	QdrantURL      string // qdrant
	QdrantAPIKey   string
	CollectionName string

	EmbedProvider string
	EmbedModel    string
	EmbedBaseURL  string
	OpenAIAPIKey  string

	AgentID       string
	SchemaVersion string
}

// lookupEnv is a test seam.
var lookupEnv = os.Getenv

// Load reads configuration from the environment. ARCHETYPE_PATH is the
// only required variable; everything else has a local-development
// default.
func Load() (Config, error) {
	cfg := Config{
		ArchetypePath:  lookupEnv("ARCHETYPE_PATH"),
		StorageBackend: envOr("STORAGE_BACKEND", BackendSQLite),
		DataDir:        lookupEnv("DATA_DIR"),
		QdrantURL:      envOr("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:   lookupEnv("QDRANT_API_KEY"),
		CollectionName: envOr("COLLECTION_NAME", "memories"),
		EmbedProvider:  envOr("EMBED_PROVIDER", "local"),
		EmbedModel:     lookupEnv("EMBED_MODEL"),
		EmbedBaseURL:   lookupEnv("EMBED_BASE_URL"),
		OpenAIAPIKey:   lookupEnv("OPENAI_API_KEY"),
		AgentID:        envOr("AGENT_ID", "default"),
		SchemaVersion:  envOr("SCHEMA_VERSION", "1.0"),
	}

	if cfg.ArchetypePath == "" {
		return Config{}, fmt.Errorf("config: ARCHETYPE_PATH is required")
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".mnemon")
	}

	switch strings.ToLower(cfg.StorageBackend) {
	case BackendSQLite, BackendQdrant:
		cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	default:
		return Config{}, fmt.Errorf("config: unknown STORAGE_BACKEND %q (want sqlite or qdrant)", cfg.StorageBackend)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := lookupEnv(key); v != "" {
		return v
	}
	return fallback
}
