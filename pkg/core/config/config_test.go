// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"API_KEY", "OPENAI_API_KEY", "OPENAI_API_ENDPOINT", "SEARCH_PROVIDER",
		"GOOGLE_API_KEY", "GOOGLE_CSE_ID", "SERPER_API_KEY", "BRAVE_API_KEY",
		"TAVILY_API_KEY", "INSTRUCTIONS_PATH", "RUN_STORE_TYPE", "RUN_STORE_DSN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_FileAndDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server:
  port: 9000
engine:
  api_key: sk-test
  timeout: 15s
  query_model: gpt-4o-mini
  high_accuracy_models: [gpt-4o]
search:
  provider: google
  api_key: g-key
  engine_id: cx-1
instructions:
  path: prompts.json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Engine.Timeout != 15*time.Second {
		t.Errorf("Engine.Timeout = %v", cfg.Engine.Timeout)
	}
	if cfg.Engine.QueryModel != "gpt-4o-mini" || len(cfg.Engine.HighAccuracyModels) != 1 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.RunStore.Type != "memory" || cfg.RunStore.MaxRuns != 1000 {
		t.Errorf("unexpected run store defaults: %+v", cfg.RunStore)
	}
	if cfg.Instructions.Path != "prompts.json" {
		t.Errorf("Instructions.Path = %q", cfg.Instructions.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SEARCH_PROVIDER", "serper")
	t.Setenv("SERPER_API_KEY", "serper-env")
	t.Setenv("GOOGLE_API_KEY", "ignored")
	t.Setenv("API_KEY", "caller-key")

	path := writeFile(t, "config.yaml", "engine:\n  api_key: sk-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.APIKey != "sk-env" {
		t.Errorf("Engine.APIKey = %q, want env override", cfg.Engine.APIKey)
	}
	if cfg.Search.APIKey != "serper-env" {
		t.Errorf("Search.APIKey = %q, want serper-env", cfg.Search.APIKey)
	}
	if cfg.Auth.APIKey != "caller-key" {
		t.Errorf("Auth.APIKey = %q", cfg.Auth.APIKey)
	}
}

func TestLoad_ProviderKeyFollowsFileProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SERPER_API_KEY", "serper-secret")

	path := writeFile(t, "config.yaml", "search:\n  provider: google\n  engine_id: cx\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.APIKey != "" {
		t.Errorf("Search.APIKey = %q, want empty for google", cfg.Search.APIKey)
	}
	err = cfg.Validate()
	if !errors.Is(err, ErrConfigurationMissing) || !strings.Contains(err.Error(), "search.api_key") {
		t.Errorf("expected missing search.api_key, got %v", err)
	}

	t.Setenv("GOOGLE_API_KEY", "google-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.APIKey != "google-key" {
		t.Errorf("Search.APIKey = %q, want google-key", cfg.Search.APIKey)
	}
}

func TestLoad_EnvProviderSwitchDropsFileCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEARCH_PROVIDER", "brave")

	path := writeFile(t, "config.yaml", "search:\n  provider: google\n  api_key: g-key\n  engine_id: cx\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.Provider != "brave" || cfg.Search.APIKey != "" || cfg.Search.EngineID != "" {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_ReportsMissing(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Search.Provider = "google"

	err := cfg.Validate()
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	for _, want := range []string{"engine.api_key", "search.api_key", "search.engine_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidate_MockBackendNeedsNoKey(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Engine.Backend = "mock"
	cfg.Search.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg.Engine.Backend = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestSearchConfig_Params(t *testing.T) {
	params := SearchConfig{APIKey: "k", EngineID: "cx", MaxResults: 5, Timeout: 10 * time.Second}.Params()
	if params["api_key"] != "k" || params["engine_id"] != "cx" || params["max_results"] != "5" || params["timeout"] != "10s" {
		t.Errorf("unexpected params: %v", params)
	}
}

const instructionsJSON = `{
	"examples": "Q: weather? Query: weather today",
	"first_instruction": "Write a search query.",
	"second_instruction": "Write a different search query.",
	"final_instruction": "Answer using the results."
}`

func TestLoadInstructions_JSONFile(t *testing.T) {
	path := writeFile(t, "prompts.json", instructionsJSON)
	ins, err := LoadInstructions(context.Background(), InstructionsConfig{Path: path})
	if err != nil {
		t.Fatalf("LoadInstructions: %v", err)
	}
	if ins.SecondInstruction != "Write a different search query." {
		t.Errorf("SecondInstruction = %q", ins.SecondInstruction)
	}
}

func TestLoadInstructions_YAMLWithInlineOverride(t *testing.T) {
	path := writeFile(t, "prompts.yaml", `
examples: ex
first_instruction: first
second_instruction: second
final_instruction: final
`)
	cfg := InstructionsConfig{Path: path}
	cfg.FinalInstruction = "overridden"

	ins, err := LoadInstructions(context.Background(), cfg)
	if err != nil {
		t.Fatalf("LoadInstructions: %v", err)
	}
	if ins.Examples != "ex" || ins.FinalInstruction != "overridden" {
		t.Errorf("unexpected instructions: %+v", ins)
	}
}

func TestLoadInstructions_Missing(t *testing.T) {
	cfg := InstructionsConfig{}
	cfg.Examples = "ex"

	_, err := LoadInstructions(context.Background(), cfg)
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "instructions.final_instruction") {
		t.Errorf("error %q does not name the missing field", err)
	}
}

type fakeGetter struct {
	body   string
	bucket string
	key    string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestLoadInstructions_S3(t *testing.T) {
	getter := &fakeGetter{body: instructionsJSON}
	ins, err := loadInstructions(context.Background(), InstructionsConfig{Path: "s3://prompts-bucket/gateway/prompts.json"}, getter)
	if err != nil {
		t.Fatalf("loadInstructions: %v", err)
	}
	if getter.bucket != "prompts-bucket" || getter.key != "gateway/prompts.json" {
		t.Errorf("fetched s3://%s/%s", getter.bucket, getter.key)
	}
	if ins.FirstInstruction != "Write a search query." {
		t.Errorf("FirstInstruction = %q", ins.FirstInstruction)
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri         string
		bucket, key string
		ok          bool
	}{
		{"s3://b/k.json", "b", "k.json", true},
		{"s3://b/dir/k.yaml", "b", "dir/k.yaml", true},
		{"s3://b", "", "", false},
		{"s3:///k", "", "", false},
		{"/etc/prompts.json", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, ok := parseS3URI(tt.uri)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Errorf("parseS3URI(%q) = %q, %q, %v", tt.uri, bucket, key, ok)
		}
	}
}
