package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the vigil service configuration, loaded from a YAML file.
// Durations are plain integers in seconds.
type Config struct {
	Server struct {
		Addr            string `yaml:"addr,omitempty"`
		Path            string `yaml:"path,omitempty"`
		PingInterval    int    `yaml:"ping_interval,omitempty"`
		WriteTimeout    int    `yaml:"write_timeout,omitempty"`
		MaxMessageBytes int64  `yaml:"max_message_bytes,omitempty"`
	} `yaml:"server,omitempty"`

	Dialog struct {
		// Backend selects the generation backend: "openai" (default)
		// or "gemini".
		Backend     string  `yaml:"backend,omitempty"`
		MaxTokens   int     `yaml:"max_tokens,omitempty"`
		Temperature float64 `yaml:"temperature,omitempty"`
	} `yaml:"dialog,omitempty"`

	OpenAI struct {
		APIKey          string `yaml:"api_key,omitempty"`
		BaseURL         string `yaml:"base_url,omitempty"`
		ChatModel       string `yaml:"chat_model,omitempty"`
		TranscribeModel string `yaml:"transcribe_model,omitempty"`
		SpeechModel     string `yaml:"speech_model,omitempty"`
		Voice           string `yaml:"voice,omitempty"`
		Language        string `yaml:"language,omitempty"`
	} `yaml:"openai,omitempty"`

	Gemini struct {
		APIKey string `yaml:"api_key,omitempty"`
		Model  string `yaml:"model,omitempty"`
	} `yaml:"gemini,omitempty"`

	Telephony struct {
		AccountSID     string `yaml:"account_sid,omitempty"`
		AuthToken      string `yaml:"auth_token,omitempty"`
		BaseURL        string `yaml:"base_url,omitempty"`
		DispatchNumber string `yaml:"dispatch_number,omitempty"`
		CallerNumber   string `yaml:"caller_number,omitempty"`
		PollInterval   int    `yaml:"poll_interval,omitempty"`
		MaxPolls       int    `yaml:"max_polls,omitempty"`
	} `yaml:"telephony,omitempty"`

	Audio struct {
		SampleRate int  `yaml:"sample_rate,omitempty"`
		Stereo     bool `yaml:"stereo,omitempty"`
	} `yaml:"audio,omitempty"`

	Escalation struct {
		Timeout       int `yaml:"timeout,omitempty"`
		CheckInterval int `yaml:"check_interval,omitempty"`
		MaxSilence    int `yaml:"max_silence,omitempty"`
		HistoryLimit  int `yaml:"history_limit,omitempty"`
	} `yaml:"escalation,omitempty"`

	Archive struct {
		// Backend: "" (disabled), "local", or "s3".
		Backend   string `yaml:"backend,omitempty"`
		Dir       string `yaml:"dir,omitempty"`
		Bucket    string `yaml:"bucket,omitempty"`
		Prefix    string `yaml:"prefix,omitempty"`
		Region    string `yaml:"region,omitempty"`
		Endpoint  string `yaml:"endpoint,omitempty"`
		AccessKey string `yaml:"access_key,omitempty"`
		SecretKey string `yaml:"secret_key,omitempty"`
	} `yaml:"archive,omitempty"`

	CallLog struct {
		Dir            string `yaml:"dir,omitempty"`
		RetentionHours int    `yaml:"retention_hours,omitempty"`
	} `yaml:"calllog,omitempty"`
}

// LoadConfig reads the YAML config at path. A missing path yields a config
// of defaults and environment credentials, so the server can run in
// simulation mode with nothing on disk.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills credentials from the conventional environment variables
// when the file leaves them empty.
func (c *Config) applyEnv() {
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Telephony.AccountSID == "" {
		c.Telephony.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if c.Telephony.AuthToken == "" {
		c.Telephony.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
