// Package config loads the service's Settings from environment variables,
// optionally overlaid by a TOML file named in FREQMODA_CONFIG.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

func defaultConcurrency() int { return runtime.NumCPU() }

// Settings is the fully assembled configuration surface.
type Settings struct {
	Server    Server
	Storage   Storage
	Processor Processor
	Cache     Cache
	Signer    Signer
	CustomTags map[string]string
}

type Server struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	IdleTimeout  time.Duration
}

type Storage struct {
	Kind       string // "filesystem" | "s3" | "gcs"
	BaseDir    string
	PathPrefix string
	SafeChars  string

	S3  S3Config
	GCS GCSConfig
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

type Processor struct {
	DisabledFilters    []string
	MaxFilterOps       int
	Concurrency        int
	SourceFetchTimeout time.Duration
	PipelineTimeout    time.Duration
	AdmissionQueueDepth int
}

type Cache struct {
	TTL          time.Duration
	Backend      string // "filesystem" | "redis"
	Dir          string
	RedisAddr    string
	MaxEntries   int
	MaxDiskBytes int64
	MaxMemBytes  int64
}

type Signer struct {
	Enabled bool
	Secret  string
}

// fileOverlay is the optional TOML shape; any field present overrides the
// environment-derived default for that same Settings field.
type fileOverlay struct {
	Server struct {
		Host string
		Port int
	}
	Storage struct {
		Kind       string
		BaseDir    string
		PathPrefix string
	}
	Processor struct {
		Concurrency int
	}
	Cache struct {
		TTLSeconds int64 `toml:"ttl_seconds"`
		Backend    string
	}
	CustomTags map[string]string `toml:"custom_tags"`
}

// Env returns the value of the environment variable key, or def if unset.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

// Load assembles Settings from the environment, then overlays a TOML file
// named by FREQMODA_CONFIG if set.
func Load() (Settings, error) {
	s := Settings{
		Server: Server{
			Host:        Env("FREQMODA_HOST", "0.0.0.0"),
			Port:        envInt("FREQMODA_PORT", 8080),
			ReadTimeout: envDuration("FREQMODA_READ_TIMEOUT", 15*time.Second),
			IdleTimeout: envDuration("FREQMODA_IDLE_TIMEOUT", 60*time.Second),
		},
		Storage: Storage{
			Kind:       Env("FREQMODA_STORAGE_KIND", "filesystem"),
			BaseDir:    Env("FREQMODA_STORAGE_BASE_DIR", "./data"),
			PathPrefix: Env("FREQMODA_STORAGE_PATH_PREFIX", ""),
			SafeChars:  Env("FREQMODA_STORAGE_SAFE_CHARS", ""),
			S3: S3Config{
				Endpoint:  Env("FREQMODA_S3_ENDPOINT", ""),
				Region:    Env("FREQMODA_S3_REGION", ""),
				AccessKey: Env("FREQMODA_S3_ACCESS_KEY", ""),
				SecretKey: Env("FREQMODA_S3_SECRET_KEY", ""),
				Bucket:    Env("FREQMODA_S3_BUCKET", ""),
				UseSSL:    envBool("FREQMODA_S3_USE_SSL", true),
			},
			GCS: GCSConfig{
				Bucket:          Env("FREQMODA_GCS_BUCKET", ""),
				CredentialsFile: Env("FREQMODA_GCS_CREDENTIALS_FILE", ""),
			},
		},
		Processor: Processor{
			Concurrency:         envInt("FREQMODA_CONCURRENCY", 0),
			MaxFilterOps:        envInt("FREQMODA_MAX_FILTER_OPS", 32),
			SourceFetchTimeout:  envDuration("FREQMODA_SOURCE_FETCH_TIMEOUT", 30*time.Second),
			PipelineTimeout:     envDuration("FREQMODA_PIPELINE_TIMEOUT", 60*time.Second),
			AdmissionQueueDepth: envInt("FREQMODA_ADMISSION_QUEUE_DEPTH", 64),
		},
		Cache: Cache{
			TTL:          envDuration("FREQMODA_CACHE_TTL", time.Hour),
			Backend:      Env("FREQMODA_CACHE_BACKEND", "filesystem"),
			Dir:          Env("FREQMODA_CACHE_DIR", "./cache"),
			RedisAddr:    Env("FREQMODA_REDIS_ADDR", "localhost:6379"),
			MaxEntries:   envInt("FREQMODA_CACHE_MAX_ENTRIES", 10_000),
			MaxDiskBytes: int64(envInt("FREQMODA_CACHE_MAX_DISK_BYTES", 1<<30)),
			MaxMemBytes:  int64(envInt("FREQMODA_CACHE_MAX_MEM_BYTES", 256<<20)),
		},
		Signer: Signer{
			Enabled: envBool("FREQMODA_SIGNER_ENABLED", false),
			Secret:  Env("FREQMODA_SIGNER_SECRET", ""),
		},
	}

	if path := os.Getenv("FREQMODA_CONFIG"); path != "" {
		var fo fileOverlay
		if _, err := toml.DecodeFile(path, &fo); err != nil {
			return s, fmt.Errorf("decode config file %q: %w", path, err)
		}
		applyOverlay(&s, fo)
	}

	if s.Processor.Concurrency <= 0 {
		s.Processor.Concurrency = defaultConcurrency()
	}

	return s, nil
}

func applyOverlay(s *Settings, fo fileOverlay) {
	if fo.Server.Host != "" {
		s.Server.Host = fo.Server.Host
	}
	if fo.Server.Port != 0 {
		s.Server.Port = fo.Server.Port
	}
	if fo.Storage.Kind != "" {
		s.Storage.Kind = fo.Storage.Kind
	}
	if fo.Storage.BaseDir != "" {
		s.Storage.BaseDir = fo.Storage.BaseDir
	}
	if fo.Storage.PathPrefix != "" {
		s.Storage.PathPrefix = fo.Storage.PathPrefix
	}
	if fo.Processor.Concurrency != 0 {
		s.Processor.Concurrency = fo.Processor.Concurrency
	}
	if fo.Cache.TTLSeconds != 0 {
		s.Cache.TTL = time.Duration(fo.Cache.TTLSeconds) * time.Second
	}
	if fo.Cache.Backend != "" {
		s.Cache.Backend = fo.Cache.Backend
	}
	if fo.CustomTags != nil {
		s.CustomTags = fo.CustomTags
	}
}
