// Package config handles Alicia configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/alicia/config.yaml, /etc/alicia/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "alicia", "config.yaml"))
	}

	paths = append(paths, "/etc/alicia/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Alicia configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Clinic     ClinicConfig     `yaml:"clinic"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Memory     MemoryConfig     `yaml:"memory"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8750
}

// GeminiConfig defines the chat model provider settings.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`    // Default: gemini-2.5-flash
	BaseURL string `yaml:"base_url"` // Override for testing/proxies
}

// CalendarConfig defines the CalDAV connection for the doctor's calendar.
type CalendarConfig struct {
	URL      string `yaml:"url"`      // CalDAV endpoint
	Username string `yaml:"username"` // Basic auth
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // Collection path holding appointment events
}

// SMTPConfig defines outbound mail delivery settings.
type SMTPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`     // Default: 587
	StartTLS   bool   `yaml:"starttls"` // true = plain connect + STARTTLS, false = implicit TLS
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`        // Envelope/header sender address
	SenderName string `yaml:"sender_name"` // Display name (default: clinic name)
}

// ClinicConfig defines clinic identity and the doctor's weekly availability.
type ClinicConfig struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Timezone string `yaml:"timezone"` // Default: Asia/Jakarta

	// Availability maps lowercase day names to "HH:MM-HH:MM" windows
	// or "closed". Days absent from the map are closed.
	Availability map[string]string `yaml:"availability"`
}

// KnowledgeConfig defines the clinic knowledge base settings.
type KnowledgeConfig struct {
	DocsDir      string `yaml:"docs_dir"`      // Directory of markdown documents
	ChunkSize    int    `yaml:"chunk_size"`    // Default: 500
	ChunkOverlap int    `yaml:"chunk_overlap"` // Default: 100
	TopK         int    `yaml:"top_k"`         // Default: 5
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`    // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"base_url"` // Ollama-compatible endpoint
}

// MemoryConfig defines the long-term memory API settings.
type MemoryConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	DefaultUser string `yaml:"default_user"` // Fallback user id for unidentified patients
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8750
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
		c.SMTP.StartTLS = true
	}
	if c.SMTP.SenderName == "" {
		c.SMTP.SenderName = c.Clinic.Name
	}
	if c.Clinic.Timezone == "" {
		c.Clinic.Timezone = "Asia/Jakarta"
	}
	if c.Knowledge.ChunkSize == 0 {
		c.Knowledge.ChunkSize = 500
	}
	if c.Knowledge.ChunkOverlap == 0 {
		c.Knowledge.ChunkOverlap = 100
	}
	if c.Knowledge.TopK == 0 {
		c.Knowledge.TopK = 5
	}
	if c.Memory.DefaultUser == "" {
		c.Memory.DefaultUser = "default"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
}

func (c *Config) validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required")
	}
	if c.Calendar.URL == "" {
		return fmt.Errorf("calendar.url is required")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required")
	}
	return nil
}
