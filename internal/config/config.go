package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Command maps a short slash-command name to its expansion text.
type Command struct {
	Name   string `json:"name" mapstructure:"name"`
	Prompt string `json:"prompt" mapstructure:"prompt"`
}

// SpeechSettings selects the synthesis backend and voices.
type SpeechSettings struct {
	Backend      string   `json:"backend" mapstructure:"backend"` // "local" or "cloud"
	LocalVoice   string   `json:"localVoice" mapstructure:"local_voice"`
	LocalCommand []string `json:"localCommand" mapstructure:"local_command"`
	CloudAPIKey  string   `json:"cloudApiKey" mapstructure:"cloud_api_key"`
	CloudVoice   string   `json:"cloudVoice" mapstructure:"cloud_voice"`
	AutoPlay     bool     `json:"autoPlay" mapstructure:"auto_play"`
}

// Settings is the full persisted settings document. Readers get copies;
// between a write and its change notification a reader may observe a stale
// value, which consumers must tolerate.
type Settings struct {
	APIKey             string         `json:"apiKey" mapstructure:"api_key"`
	Model              string         `json:"model" mapstructure:"model"`
	MaxContext         int            `json:"maxContext" mapstructure:"max_context"`
	CustomSystemPrompt string         `json:"customSystemPrompt" mapstructure:"custom_system_prompt"`
	Commands           []Command      `json:"commands" mapstructure:"commands"`
	FontFamily         string         `json:"fontFamily" mapstructure:"font_family"`
	Theme              string         `json:"theme" mapstructure:"theme"`
	SaveDir            string         `json:"saveDir" mapstructure:"save_dir"`
	Speech             SpeechSettings `json:"speech" mapstructure:"speech"`
}

const (
	defaultModel      = "claude-sonnet-4-20250514"
	defaultMaxContext = 10000
)

// DefaultCommands is the command table first-run seed.
var DefaultCommands = []Command{
	{Name: "tldr", Prompt: "Provide a TL;DR summary of the page content."},
	{Name: "explain", Prompt: "Explain this content in simple terms as if I'm not an expert."},
	{Name: "translate", Prompt: "Translate the following to"},
	{Name: "key", Prompt: "List the key takeaways from this content."},
}

// Store is a file-backed settings store with change notifications.
// Listeners live on the store itself, so subscriptions made before (or
// without) Watch still receive every in-process Set.
type Store struct {
	v    *viper.Viper
	path string

	mu      sync.RWMutex
	current Settings
	watcher *watcher

	notifyMu  sync.Mutex
	listeners []Listener
	lastSent  Settings
}

// Load reads (creating if absent) the settings file at path.
func Load(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.WriteConfigAs(path); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	s := &Store{v: v, path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	s.lastSent = s.Get()
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("model", defaultModel)
	v.SetDefault("max_context", defaultMaxContext)
	v.SetDefault("custom_system_prompt", "")
	v.SetDefault("commands", DefaultCommands)
	v.SetDefault("font_family", "system-ui")
	v.SetDefault("theme", "dark")
	v.SetDefault("save_dir", "")
	v.SetDefault("speech.backend", "local")
	v.SetDefault("speech.auto_play", false)
}

func (s *Store) reload() error {
	var settings Settings
	if err := s.v.Unmarshal(&settings); err != nil {
		return fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return nil
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set updates one key, persists the file and notifies listeners. When
// the file watcher is running its fsnotify event also fires; notify is
// deduplicated per generation so listeners see one update per write.
func (s *Store) Set(key string, value any) error {
	s.v.Set(key, value)
	if err := s.v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := s.reload(); err != nil {
		return err
	}
	s.notify(s.Get())
	return nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }
