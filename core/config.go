package core

import (
	"fmt"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env            string `yaml:"env" env:"ENV" env-default:"local"`
	TelegramApiKey string `yaml:"telegram_api_key" env:"TELEGRAM_API_KEY" env-default:""`
	OpenAIApiKey   string `yaml:"openai_api_key" env:"OPENAI_API_KEY" env-default:""`
	GeminiApiKey   string `yaml:"gemini_api_key" env:"GEMINI_API_KEY" env-default:""`
	VisionApiKey   string `yaml:"vision_api_key" env:"VISION_API_KEY" env-default:""`
	Model          string `yaml:"model" env-default:"gpt-4o-mini"`
	GeminiModel    string `yaml:"gemini_model" env-default:"gemini-2.0-flash"`
	TTSVoice       string `yaml:"tts_voice" env-default:"alloy"`
	MaxInputTokens int    `yaml:"max_input_tokens" env-default:"4096"`
	Storage        struct {
		Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
		SQLite struct {
			Path string `yaml:"path" env-default:"omni.db"`
		} `yaml:"sqlite"`
		Mongo struct {
			Host     string `yaml:"host" env-default:"127.0.0.1"`
			Port     string `yaml:"port" env-default:"27017"`
			User     string `yaml:"user" env-default:"admin"`
			Password string `yaml:"password" env-default:"pass"`
			Database string `yaml:"database" env-default:""`
		} `yaml:"mongo"`
	} `yaml:"storage"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}
