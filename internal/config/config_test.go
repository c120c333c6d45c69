package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `
server:
  address: ":9090"
mysql:
  host: "db.internal"
  port: 3307
  username: "app"
  password: "secret"
  database: "resume_match"
llm:
  api_key: "test-key"
  model: "qwen-plus"
  temperature: 0.1
  call_timeout: "45s"
analyzer:
  chunk_size: 800
  top_k: 3
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, "qwen-plus", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.CallTimeoutDuration())

	// 显式配置的值不被默认值覆盖
	assert.Equal(t, 800, cfg.Analyzer.ChunkSize)
	assert.Equal(t, 3, cfg.Analyzer.TopK)

	// 未配置的字段应回落到默认值
	assert.Equal(t, 200, cfg.Analyzer.ChunkOverlap)
	assert.Equal(t, 1000, cfg.Analyzer.JDMaxChars)
	assert.Equal(t, 2000, cfg.Analyzer.EvidenceMaxChars)
	assert.Equal(t, "resumes", cfg.MinIO.ResumeBucket)
	assert.Equal(t, "session.events.exchange", cfg.RabbitMQ.SessionEventsExchange)

	// embedding 未单独配置 api_key 时复用 llm 的
	assert.Equal(t, "test-key", cfg.Embedding.APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `
llm:
  api_key: "from-file"
`)
	t.Setenv("LLM_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 1000, cfg.Analyzer.ChunkSize)
	assert.Equal(t, 200, cfg.Analyzer.ChunkOverlap)
	assert.Equal(t, 5, cfg.Analyzer.TopK)
	assert.Equal(t, 60*time.Second, cfg.LLM.CallTimeoutDuration())
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
}

func TestCallTimeoutDurationInvalid(t *testing.T) {
	c := LLMConfig{CallTimeout: "not-a-duration"}
	assert.Equal(t, 60*time.Second, c.CallTimeoutDuration())
}
