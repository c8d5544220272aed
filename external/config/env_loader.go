package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/ferndesk/roomscribe/internal/config"
)

type envConfig struct {
	Env            string `env:"ENV" envDefault:"production"`
	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`

	LiveKitURL       string `env:"LIVEKIT_URL,required"`
	LiveKitAPIKey    string `env:"LIVEKIT_API_KEY,required"`
	LiveKitAPISecret string `env:"LIVEKIT_API_SECRET,required"`
	BotIdentity      string `env:"BOT_IDENTITY" envDefault:"roomscribe-bot"`
	BotName          string `env:"BOT_NAME" envDefault:"Roomscribe"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	DefaultLanguage            string `env:"DEFAULT_LANGUAGE,required"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"`

	ForwardURLs           []string `env:"TRANSCRIPT_FORWARD_URLS" envSeparator:","`
	MaxSessionDurationMin int      `env:"MAX_SESSION_DURATION_MIN" envDefault:"120"`
	JoinRetryDelaySec     int      `env:"JOIN_RETRY_DELAY_SEC" envDefault:"2"`

	SampleRate         int     `env:"AUDIO_SAMPLE_RATE" envDefault:"16000"`
	ChunkSamples       int     `env:"AUDIO_CHUNK_SAMPLES" envDefault:"4800"`
	SpeechRMSThreshold float64 `env:"SPEECH_RMS_THRESHOLD" envDefault:"0.01"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		HTTPListenAddr:             raw.HTTPListenAddr,
		LiveKitURL:                 raw.LiveKitURL,
		LiveKitAPIKey:              raw.LiveKitAPIKey,
		LiveKitAPISecret:           raw.LiveKitAPISecret,
		BotIdentity:                raw.BotIdentity,
		BotName:                    raw.BotName,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DefaultLanguage:            raw.DefaultLanguage,
		DatabaseURL:                raw.DatabaseURL,
		RedisAddr:                  raw.RedisAddr,
		RedisPassword:              raw.RedisPassword,
		KafkaBrokers:               raw.KafkaBrokers,
		KafkaTopic:                 raw.KafkaTopic,
		ForwardURLs:                raw.ForwardURLs,
		MaxSessionDurationMin:      raw.MaxSessionDurationMin,
		JoinRetryDelaySec:          raw.JoinRetryDelaySec,
		SampleRate:                 raw.SampleRate,
		ChunkSamples:               raw.ChunkSamples,
		SpeechRMSThreshold:         raw.SpeechRMSThreshold,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
