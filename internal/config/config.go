package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models the worksheet settings (rpm.yml).
type Config struct {
	Schedule struct {
		BacklogBlock string      `yaml:"backlog_block" json:"backlog_block"`
		Quartiles    int         `yaml:"quartiles" json:"quartiles"`
		TimeBlocks   []TimeBlock `yaml:"time_blocks" json:"time_blocks"`
	} `yaml:"schedule" json:"schedule"`
	Autosave struct {
		Interval string `yaml:"interval" json:"interval"`
	} `yaml:"autosave" json:"autosave"`
	Extraction struct {
		Model     string `yaml:"model" json:"model"`
		MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
	} `yaml:"extraction" json:"extraction"`
	Calendar struct {
		CalendarID      string `yaml:"calendar_id" json:"calendar_id"`
		CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
		TokenFile       string `yaml:"token_file" json:"token_file"`
		Timezone        string `yaml:"timezone" json:"timezone"`
	} `yaml:"calendar" json:"calendar"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// WebhookConfig describes an event delivery target. Empty Events means all.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// TimeBlock is a named segment of the day. Start and End are HH:MM.
type TimeBlock struct {
	Name  string `yaml:"name" json:"name"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Schedule.BacklogBlock) == "" {
		return fmt.Errorf("config.schedule.backlog_block is required")
	}
	if c.Schedule.Quartiles < 1 {
		return fmt.Errorf("config.schedule.quartiles must be >= 1")
	}
	if len(c.Schedule.TimeBlocks) == 0 {
		return fmt.Errorf("config.schedule.time_blocks is required")
	}
	seen := map[string]bool{}
	for i, b := range c.Schedule.TimeBlocks {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("time block %d has empty name", i)
		}
		if b.Name == c.Schedule.BacklogBlock {
			return fmt.Errorf("time block %s collides with the backlog block", b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate time block %s", b.Name)
		}
		seen[b.Name] = true
		start, err := time.Parse("15:04", b.Start)
		if err != nil {
			return fmt.Errorf("time block %s: invalid start %q", b.Name, b.Start)
		}
		end, err := time.Parse("15:04", b.End)
		if err != nil {
			return fmt.Errorf("time block %s: invalid end %q", b.Name, b.End)
		}
		if !end.After(start) {
			return fmt.Errorf("time block %s: end must be after start", b.Name)
		}
	}
	if _, err := c.AutosaveInterval(); err != nil {
		return err
	}
	if c.Extraction.MaxTokens < 0 {
		return fmt.Errorf("config.extraction.max_tokens must be >= 0")
	}
	if c.Calendar.Timezone != "" {
		if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
			return fmt.Errorf("config.calendar.timezone: %w", err)
		}
	}
	for i, w := range c.Webhooks {
		if strings.TrimSpace(w.URL) == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
		if w.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d: timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// AutosaveInterval returns the debounce quiet interval.
func (c *Config) AutosaveInterval() (time.Duration, error) {
	if c.Autosave.Interval == "" {
		return 1500 * time.Millisecond, nil
	}
	d, err := time.ParseDuration(c.Autosave.Interval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.autosave.interval must be a positive duration")
	}
	return d, nil
}

// BlockNames returns the configured time block names in day order.
func (c *Config) BlockNames() []string {
	names := make([]string, 0, len(c.Schedule.TimeBlocks))
	for _, b := range c.Schedule.TimeBlocks {
		names = append(names, b.Name)
	}
	return names
}

// Block looks up a time block by name.
func (c *Config) Block(name string) (TimeBlock, bool) {
	for _, b := range c.Schedule.TimeBlocks {
		if b.Name == name {
			return b, true
		}
	}
	return TimeBlock{}, false
}

// IsCell reports whether (block, quartile) addresses a grid cell or the backlog sentinel.
func (c *Config) IsCell(block string, quartile int) bool {
	if block == c.Schedule.BacklogBlock {
		return quartile == 0
	}
	if _, ok := c.Block(block); !ok {
		return false
	}
	return quartile >= 1 && quartile <= c.Schedule.Quartiles
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultTemplate = `schedule:
  backlog_block: BACKLOG
  quartiles: 4
  time_blocks:
    - name: "MORNING ROUTINE (5-7AM)"
      start: "05:00"
      end: "07:00"
    - name: "CHIEF PROJECT (9-11AM)"
      start: "09:00"
      end: "11:00"
    - name: "DEEP WORK (11AM-1PM)"
      start: "11:00"
      end: "13:00"
    - name: "ADMIN (2-4PM)"
      start: "14:00"
      end: "16:00"
    - name: "PERSONAL (6-8PM)"
      start: "18:00"
      end: "20:00"

autosave:
  interval: 1.5s

extraction:
  model: claude-sonnet-4-20250514
  max_tokens: 4096

calendar:
  calendar_id: primary
  credentials_file: credentials.json
  token_file: token.json
  timezone: UTC
`
