// Package config loads the daemon configuration from YAML, with secrets and
// endpoints overridable from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voxm2m/internal/nlu"
)

const (
	DefaultPath          = "vox.yaml"
	DefaultPollInterval  = 4 * time.Second
	DefaultThreshold     = 0.2
	DefaultStoreURL      = "http://127.0.0.1:8080"
	DefaultStoreOrigin   = "admin:admin"
	DefaultStoreTimeout  = 10 * time.Second
	DefaultSourceName    = "voice_command"
	DefaultSourcePath    = "/~/in-cse/in-name/voice_command/audio_upload?rcn=4"
	DefaultRecognizeTime = 60 * time.Second
	DefaultRetries       = 3
	DefaultSocket        = "/tmp/vox.sock"
)

// Recognizer backends.
const (
	TranscriberOpenAI  = "openai"
	TranscriberWhisper = "whisper"
	MatcherEmbedding   = "embedding"
	MatcherChat        = "chat"
	EmbedderOpenAI     = "openai"
	EmbedderOllama     = "ollama"
)

type Config struct {
	PollInterval *time.Duration        `yaml:"poll_interval"`
	Threshold    *float64              `yaml:"threshold"`
	Store        StoreConfig           `yaml:"store"`
	Sources      []SourceConfig        `yaml:"sources"`
	Catalog      nlu.Catalog           `yaml:"catalog"`
	Devices      map[string]nlu.Device `yaml:"devices"`
	Recognizer   RecognizerConfig      `yaml:"recognizer"`
	Dispatch     DispatchConfig        `yaml:"dispatch"`
	Archive      ArchiveConfig         `yaml:"archive"`
	Clips        ClipsConfig           `yaml:"clips"`
	Hub          HubConfig             `yaml:"hub"`
	Status       StatusConfig          `yaml:"status"`
	IPC          IPCConfig             `yaml:"ipc"`
	Feedback     FeedbackConfig        `yaml:"feedback"`
	Proxy        string                `yaml:"proxy"`
	SentryDSN    string                `yaml:"sentry_dsn"`
}

type StoreConfig struct {
	BaseURL string        `yaml:"base_url"`
	Origin  string        `yaml:"origin"`
	Timeout time.Duration `yaml:"timeout"`
}

// SourceConfig is one polled record stream. Each source gets its own poller.
type SourceConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

type RecognizerConfig struct {
	Transcriber     string        `yaml:"transcriber"`
	Matcher         string        `yaml:"matcher"`
	Embedder        string        `yaml:"embedder"`
	Language        string        `yaml:"language"`
	TranscribeModel string        `yaml:"transcribe_model"`
	WhisperModel    string        `yaml:"whisper_model"`
	EmbedModel      string        `yaml:"embed_model"`
	ChatModel       string        `yaml:"chat_model"`
	OllamaURL       string        `yaml:"ollama_url"`
	OpenAIKey       string        `yaml:"openai_key"`
	Timeout         time.Duration `yaml:"timeout"`
}

type DispatchConfig struct {
	// Retries is the total number of write attempts per command; 1 disables
	// retrying.
	Retries int `yaml:"retries"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"`
}

type ClipsConfig struct {
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type HubConfig struct {
	URL    string `yaml:"url"`
	Shard  string `yaml:"shard"`
	To     string `yaml:"to"`
	Reconn uint   `yaml:"reconnect"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

type IPCConfig struct {
	Socket string `yaml:"socket"`
}

type FeedbackConfig struct {
	Sound string `yaml:"sound"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Empty input yields the
// defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Interval returns the poll interval after defaults.
func (c *Config) Interval() time.Duration {
	if c.PollInterval == nil {
		return DefaultPollInterval
	}
	return *c.PollInterval
}

// ThresholdValue returns the acceptance threshold after defaults.
func (c *Config) ThresholdValue() float64 {
	if c.Threshold == nil {
		return DefaultThreshold
	}
	return *c.Threshold
}

// UsesOpenAI reports whether any recognizer stage talks to OpenAI.
func (c *Config) UsesOpenAI() bool {
	r := c.Recognizer
	return r.Transcriber == TranscriberOpenAI ||
		r.Matcher == MatcherChat ||
		(r.Matcher == MatcherEmbedding && r.Embedder == EmbedderOpenAI)
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Store.BaseURL, "VOX_STORE_URL")
	set(&c.Store.Origin, "VOX_STORE_ORIGIN")
	set(&c.Recognizer.OpenAIKey, "OPENAI_API_KEY")
	set(&c.SentryDSN, "SENTRY_DSN")
	set(&c.Clips.AccessKey, "MINIO_ACCESS_KEY")
	set(&c.Clips.SecretKey, "MINIO_SECRET_KEY")
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.PollInterval == nil {
		d := DefaultPollInterval
		c.PollInterval = &d
	}
	if c.Threshold == nil {
		t := DefaultThreshold
		c.Threshold = &t
	}
	if c.Store.BaseURL == "" {
		c.Store.BaseURL = DefaultStoreURL
	}
	if c.Store.Origin == "" {
		c.Store.Origin = DefaultStoreOrigin
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = DefaultStoreTimeout
	}
	if len(c.Sources) == 0 {
		c.Sources = []SourceConfig{{Name: DefaultSourceName, Path: DefaultSourcePath}}
	}
	for i := range c.Sources {
		if c.Sources[i].Name == "" {
			c.Sources[i].Name = fmt.Sprintf("source%d", i)
		}
	}
	if c.Catalog == nil {
		c.Catalog = nlu.DefaultCatalog()
	}
	if c.Devices == nil {
		c.Devices = nlu.DefaultDevices()
	}

	r := &c.Recognizer
	if r.Transcriber == "" {
		r.Transcriber = TranscriberOpenAI
	}
	if r.Matcher == "" {
		r.Matcher = MatcherEmbedding
	}
	if r.Embedder == "" {
		r.Embedder = EmbedderOpenAI
	}
	if r.Language == "" {
		r.Language = "en"
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultRecognizeTime
	}

	if c.Dispatch.Retries == 0 {
		c.Dispatch.Retries = DefaultRetries
	}
	if c.Hub.To == "" {
		c.Hub.To = "ALL"
	}
	if c.Hub.Shard == "" {
		c.Hub.Shard = "VOX"
	}
	if c.Hub.Reconn == 0 {
		c.Hub.Reconn = 5
	}
	if c.IPC.Socket == "" {
		c.IPC.Socket = DefaultSocket
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	if d := *c.PollInterval; d <= 0 {
		errs = append(errs, fmt.Sprintf("poll_interval must be positive, got %s", d))
	}
	if t := *c.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Sprintf("threshold must be within [0, 1], got %v", t))
	}
	if c.Store.Timeout < 0 {
		errs = append(errs, "store.timeout must be positive")
	}
	if u, err := url.Parse(c.Store.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("store.base_url %q must be an absolute url", c.Store.BaseURL))
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Path == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].path is required", i))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("sources[%d].name %q is duplicated", i, s.Name))
		}
		seen[s.Name] = true
	}

	if len(c.Catalog) == 0 {
		errs = append(errs, "catalog must not be empty")
	}
	d := nlu.NewDispatcher(nlu.DispatcherConfig{Devices: c.Devices})
	for _, phrase := range c.Catalog.Phrases() {
		if _, err := d.Map(c.Catalog[phrase]); err != nil {
			errs = append(errs, fmt.Sprintf("catalog[%q]: %v", phrase, err))
		}
	}
	for name, dev := range c.Devices {
		if dev.Path == "" {
			errs = append(errs, fmt.Sprintf("devices[%q].path is required", name))
		}
	}

	r := c.Recognizer
	switch r.Transcriber {
	case TranscriberOpenAI:
	case TranscriberWhisper:
		if r.WhisperModel == "" {
			errs = append(errs, "recognizer.whisper_model is required for the whisper transcriber")
		}
	default:
		errs = append(errs, fmt.Sprintf("recognizer.transcriber %q is not one of openai, whisper", r.Transcriber))
	}
	switch r.Matcher {
	case MatcherChat:
	case MatcherEmbedding:
		if r.Embedder != EmbedderOpenAI && r.Embedder != EmbedderOllama {
			errs = append(errs, fmt.Sprintf("recognizer.embedder %q is not one of openai, ollama", r.Embedder))
		}
	default:
		errs = append(errs, fmt.Sprintf("recognizer.matcher %q is not one of embedding, chat", r.Matcher))
	}
	if c.UsesOpenAI() && r.OpenAIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required by the configured recognizer")
	}

	if c.Dispatch.Retries < 0 {
		errs = append(errs, "dispatch.retries must not be negative")
	}
	if c.Clips.Bucket != "" && c.Clips.Endpoint == "" {
		errs = append(errs, "clips.endpoint is required when clips.bucket is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
