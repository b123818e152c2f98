package config

const (
	defaultConfigPath           = "~/.config/studyhub/config.toml"
	defaultDataDir              = "~/.local/share/studyhub"
	defaultLogDir               = "~/.local/share/studyhub/logs"
	defaultAPIBind              = "127.0.0.1:7600"
	defaultAllowedOrigin        = "http://localhost:3000"
	defaultMaxImageBytes        = 10 << 20
	defaultMaxMediaBytes        = 2 << 30
	defaultStorageRetryAttempts = 3
	defaultPollInterval         = 2
	defaultMaxConcurrentJobs    = 4
	defaultStageMaxAttempts     = 3
	defaultRetryBaseDelayMS     = 2000
	defaultRetryMaxDelayMS      = 30000
	defaultStageTimeout         = 600
	defaultLLMBaseURL           = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel             = "gpt-4o-mini"
	defaultLLMTimeoutSeconds    = 120
	defaultLLMLanguage          = "en"
	defaultQuizQuestions        = 5
	defaultMaxConcepts          = 8
	defaultTranscriptionURL     = "https://api.openai.com/v1/audio/transcriptions"
	defaultTranscriptionModel   = "whisper-1"
	defaultTranscriptionTimeout = 900
	defaultOCRBinary            = "tesseract"
	defaultOCRLanguage          = "eng"
	defaultWhiteboardPixels     = 40_000_000
	defaultNotifyTimeout        = 10
	defaultRedisChannel         = "studyhub:events"
	defaultRedisHistoryKey      = "studyhub:events:recent"
	defaultRedisHistorySize     = 200
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// DefaultLectureContentTypes lists the media types accepted for lecture uploads.
func DefaultLectureContentTypes() []string {
	return []string{
		"audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav", "audio/wave",
		"audio/mp4", "audio/x-m4a", "audio/webm", "audio/ogg",
		"video/mp4", "video/quicktime", "video/webm",
	}
}

// DefaultImageContentTypes lists the media types accepted for whiteboard uploads.
func DefaultImageContentTypes() []string {
	return []string{"image/jpeg", "image/png"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind:           defaultAPIBind,
			AllowedOrigins: []string{defaultAllowedOrigin},
		},
		Gateway: Gateway{
			MaxImageBytes:        defaultMaxImageBytes,
			MaxMediaBytes:        defaultMaxMediaBytes,
			LectureContentTypes:  DefaultLectureContentTypes(),
			ImageContentTypes:    DefaultImageContentTypes(),
			StorageRetryAttempts: defaultStorageRetryAttempts,
		},
		Workflow: Workflow{
			PollInterval:      defaultPollInterval,
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			StageMaxAttempts:  defaultStageMaxAttempts,
			RetryBaseDelayMS:  defaultRetryBaseDelayMS,
			RetryMaxDelayMS:   defaultRetryMaxDelayMS,
			StageTimeout:      defaultStageTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Temperature:    0.2,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			Language:       defaultLLMLanguage,
			QuizQuestions:  defaultQuizQuestions,
			MaxConcepts:    defaultMaxConcepts,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		OCR: OCR{
			Binary:   defaultOCRBinary,
			Language: defaultOCRLanguage,
		},
		Whiteboard: Whiteboard{
			MaxPixels: defaultWhiteboardPixels,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Redis: Redis{
			Channel:     defaultRedisChannel,
			HistoryKey:  defaultRedisHistoryKey,
			HistorySize: defaultRedisHistorySize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
