// Package config assembles process-wide settings from an optional .env file,
// an optional YAML file, environment variables and flags, in that order of
// increasing precedence. The result is built once at startup and never
// mutated afterwards.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "SCENEFORGE_CONFIG"
	portEnv        = "PORT"
	appEnvEnv      = "APP_ENV"
	apiKeyEnv      = "GEMINI_API_KEY"
	codeModelEnv   = "SCENEFORGE_CODE_MODEL"
	visionModelEnv = "SCENEFORGE_VISION_MODEL"
	jobsRootEnv    = "SCENEFORGE_JOBS_ROOT"
	qualityEnv     = "SCENEFORGE_QUALITY"
)

// Config holds everything the binaries need to wire the pipeline.
type Config struct {
	Port     string         `yaml:"-"`
	Env      string         `yaml:"-"`
	Models   ModelConfig    `yaml:"models"`
	Jobs     JobConfig      `yaml:"jobs"`
	Render   RenderConfig   `yaml:"render"`
	Repair   RepairConfig   `yaml:"repair"`
	Artifact ArtifactConfig `yaml:"-"`
}

// ModelConfig names the two logical models of the pipeline. The API key is
// env-only and never read from YAML.
type ModelConfig struct {
	CodeModel       string `yaml:"codeModel"`
	VisionModel     string `yaml:"visionModel"`
	CodeMaxTokens   int    `yaml:"codeMaxTokens"`
	VisionMaxTokens int    `yaml:"visionMaxTokens"`
	APIKey          string `yaml:"-"`
}

// JobConfig describes where job scratch dirs and the job store live.
type JobConfig struct {
	Root      string `yaml:"root"`
	StorePath string `yaml:"storePath"`
}

// RenderConfig selects the output quality tier: low, medium, high or ultra.
type RenderConfig struct {
	Quality string `yaml:"quality"`
}

type RepairConfig struct {
	MaxIterations int `yaml:"maxIterations"`
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// qualityFlags maps tier names to the engine's quality flag.
var qualityFlags = map[string]string{
	"low":    "-pql",
	"medium": "-pqm",
	"high":   "-pqh",
	"ultra":  "-pqk",
}

// QualityFlag returns the engine flag for the configured tier.
func (r RenderConfig) QualityFlag() string {
	if f, ok := qualityFlags[strings.ToLower(strings.TrimSpace(r.Quality))]; ok {
		return f
	}
	return qualityFlags["high"]
}

// Load reads configuration for the API server: .env, YAML overlay, env vars,
// then flags. It calls flag.Parse and must run once, from main.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := FromEnv(*configPath)
	if err != nil {
		return nil, err
	}

	portSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "port" {
			portSet = true
		}
	})
	cfg.Port = resolvePort(*port, portSet)
	return cfg, nil
}

// resolvePort keeps an explicit -port flag over the PORT env var; the env
// var only fills in when the flag was left at its default.
func resolvePort(flagPort string, explicit bool) string {
	if explicit {
		return flagPort
	}
	if envPort := os.Getenv(portEnv); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			return envPort
		}
		return ":" + envPort
	}
	return flagPort
}

// FromEnv builds a Config without touching the flag package, for binaries
// that define their own flags. An empty path falls back to SCENEFORGE_CONFIG.
func FromEnv(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(configPathEnv))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	env := strings.TrimSpace(os.Getenv(appEnvEnv))
	if env == "" {
		env = "local"
	}
	cfg.Env = env
	cfg.Artifact = loadArtifactConfig(env)

	if cfg.Jobs.StorePath == "" {
		cfg.Jobs.StorePath = filepath.Join(cfg.Jobs.Root, "jobs.json")
	}
	if _, ok := qualityFlags[strings.ToLower(strings.TrimSpace(cfg.Render.Quality))]; !ok {
		return nil, fmt.Errorf("config: unknown render quality %q (want low, medium, high or ultra)", cfg.Render.Quality)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv(apiKeyEnv)); v != "" {
		c.Models.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(codeModelEnv)); v != "" {
		c.Models.CodeModel = v
	}
	if v := strings.TrimSpace(os.Getenv(visionModelEnv)); v != "" {
		c.Models.VisionModel = v
	}
	if v := strings.TrimSpace(os.Getenv(jobsRootEnv)); v != "" {
		c.Jobs.Root = v
		c.Jobs.StorePath = ""
	}
	if v := strings.TrimSpace(os.Getenv(qualityEnv)); v != "" {
		c.Render.Quality = v
	}
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   strings.EqualFold(strings.TrimSpace(env), "local") || endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "sceneforge-artifacts"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func defaultConfig() *Config {
	return &Config{
		Models: ModelConfig{
			CodeModel:       "gemini-2.5-pro",
			VisionModel:     "gemini-2.5-flash",
			CodeMaxTokens:   20000,
			VisionMaxTokens: 20000,
		},
		Jobs:   JobConfig{Root: "data/jobs"},
		Render: RenderConfig{Quality: "high"},
		Repair: RepairConfig{MaxIterations: 2},
	}
}
