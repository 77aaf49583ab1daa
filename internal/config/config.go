package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"prompt-enhancer/internal/prompt"
)

type Config struct {
	OpenAIKey           string
	OpenAIBaseURL       string
	Model               string
	Temperature         float32
	MaxCompletionTokens int
	SystemPrompt        string
	CountPromptTokens   bool

	HTTPAddr       string
	MaxUploadBytes int64

	ImageMaxBytes          int
	ImageMinQuality        int
	ImageQualityStep       int
	ImageStartQuality      int
	AttachmentPreviewChars int
	ForwardImages          bool
	// ImageDetail is the vision detail level sent with forwarded images: auto, low or high.
	ImageDetail string

	SessionTTL time.Duration

	TelegramToken  string
	AdminUserIDs   []int64
	AllowedUserIDs []int64
	AllowedChatIDs []int64
}

// Load reads settings from the dotenv file at path, if present, with process
// environment variables taking precedence over it.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			log.Printf("could not read %s: %v", path, err)
		}
	}

	cfg := Config{
		OpenAIKey:              v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:          v.GetString("OPENAI_BASE_URL"),
		Model:                  v.GetString("OPENAI_MODEL"),
		MaxCompletionTokens:    v.GetInt("MAX_TOKENS"),
		SystemPrompt:           v.GetString("SYSTEM_PROMPT"),
		CountPromptTokens:      v.GetBool("COUNT_PROMPT_TOKENS"),
		HTTPAddr:               v.GetString("HTTP_ADDR"),
		MaxUploadBytes:         v.GetInt64("MAX_UPLOAD_BYTES"),
		ImageMaxBytes:          v.GetInt("IMAGE_MAX_BYTES"),
		ImageMinQuality:        v.GetInt("IMAGE_MIN_QUALITY"),
		ImageQualityStep:       v.GetInt("IMAGE_QUALITY_STEP"),
		ImageStartQuality:      v.GetInt("IMAGE_START_QUALITY"),
		AttachmentPreviewChars: v.GetInt("ATTACHMENT_PREVIEW_CHARS"),
		ForwardImages:          v.GetBool("FORWARD_IMAGES"),
		ImageDetail:            strings.ToLower(strings.TrimSpace(v.GetString("IMAGE_DETAIL"))),
		SessionTTL:             time.Duration(v.GetInt("SESSION_TTL_MINUTES")) * time.Minute,
		TelegramToken:          v.GetString("TELEGRAM_BOT_TOKEN"),
		AdminUserIDs:           parseIDs(v.GetString("ADMIN_USER_IDS")),
		AllowedUserIDs:         parseIDs(v.GetString("ALLOWED_TELEGRAM_USER_IDS")),
		AllowedChatIDs:         parseIDs(v.GetString("ALLOWED_TELEGRAM_CHAT_IDS")),
	}

	temp, err := strconv.ParseFloat(strings.TrimSpace(v.GetString("OPENAI_TEMPERATURE")), 32)
	if err != nil {
		return cfg, fmt.Errorf("OPENAI_TEMPERATURE: %w", err)
	}
	cfg.Temperature = float32(temp)

	if strings.TrimSpace(cfg.OpenAIKey) == "" {
		return cfg, errors.New("openai api key is required")
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("OPENAI_MODEL", "gpt-4o-2024-08-06")
	v.SetDefault("OPENAI_TEMPERATURE", "0")
	v.SetDefault("MAX_TOKENS", 4096)
	v.SetDefault("SYSTEM_PROMPT", prompt.Default)
	v.SetDefault("COUNT_PROMPT_TOKENS", true)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MAX_UPLOAD_BYTES", 20<<20)
	v.SetDefault("IMAGE_MAX_BYTES", 250000)
	v.SetDefault("IMAGE_MIN_QUALITY", 10)
	v.SetDefault("IMAGE_QUALITY_STEP", 5)
	v.SetDefault("IMAGE_START_QUALITY", 85)
	v.SetDefault("ATTACHMENT_PREVIEW_CHARS", 100)
	v.SetDefault("FORWARD_IMAGES", true)
	v.SetDefault("IMAGE_DETAIL", "auto")
	v.SetDefault("SESSION_TTL_MINUTES", 120)
}

func (c Config) validate() error {
	switch {
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("OPENAI_TEMPERATURE must lie in 0..2, got %v", c.Temperature)
	case c.MaxCompletionTokens <= 0:
		return fmt.Errorf("MAX_TOKENS must be positive, got %d", c.MaxCompletionTokens)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	case c.ImageMaxBytes <= 0:
		return fmt.Errorf("IMAGE_MAX_BYTES must be positive, got %d", c.ImageMaxBytes)
	case c.ImageQualityStep <= 0:
		return fmt.Errorf("IMAGE_QUALITY_STEP must be positive, got %d", c.ImageQualityStep)
	case c.ImageMinQuality < 1 || c.ImageStartQuality > 100 || c.ImageMinQuality > c.ImageStartQuality:
		return fmt.Errorf("IMAGE_MIN_QUALITY (%d) and IMAGE_START_QUALITY (%d) must satisfy 1 <= min <= start <= 100",
			c.ImageMinQuality, c.ImageStartQuality)
	case c.AttachmentPreviewChars < 0:
		return fmt.Errorf("ATTACHMENT_PREVIEW_CHARS must not be negative, got %d", c.AttachmentPreviewChars)
	case c.ImageDetail != "auto" && c.ImageDetail != "low" && c.ImageDetail != "high":
		return fmt.Errorf("IMAGE_DETAIL must be one of auto, low, high, got %q", c.ImageDetail)
	case c.SessionTTL < 0:
		return fmt.Errorf("SESSION_TTL_MINUTES must not be negative, got %v", c.SessionTTL)
	}
	return nil
}

func parseIDs(raw string) []int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			log.Printf("skipping user id %q: %v", p, err)
			continue
		}
		ids = append(ids, v)
	}
	return ids
}
