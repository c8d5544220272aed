package config

import "fmt"

type Config struct {
	Env            string
	HTTPListenAddr string

	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	BotIdentity      string
	BotName          string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DefaultLanguage            string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	ForwardURLs           []string
	MaxSessionDurationMin int
	JoinRetryDelaySec     int

	SampleRate         int
	ChunkSamples       int
	SpeechRMSThreshold float64
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.MaxSessionDurationMin <= 0 {
		return fmt.Errorf("MAX_SESSION_DURATION_MIN must be positive, got %d", c.MaxSessionDurationMin)
	}
	if c.JoinRetryDelaySec <= 0 {
		return fmt.Errorf("JOIN_RETRY_DELAY_SEC must be positive, got %d", c.JoinRetryDelaySec)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.ChunkSamples <= 0 {
		return fmt.Errorf("AUDIO_CHUNK_SAMPLES must be positive, got %d", c.ChunkSamples)
	}
	if c.SpeechRMSThreshold <= 0 || c.SpeechRMSThreshold >= 1 {
		return fmt.Errorf("SPEECH_RMS_THRESHOLD must be in (0, 1), got %f", c.SpeechRMSThreshold)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "LIVEKIT_URL", value: c.LiveKitURL},
		{name: "LIVEKIT_API_KEY", value: c.LiveKitAPIKey},
		{name: "LIVEKIT_API_SECRET", value: c.LiveKitAPISecret},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "DEFAULT_LANGUAGE", value: c.DefaultLanguage},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
