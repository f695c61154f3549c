package config

const (
	defaultDataDir           = "~/.local/share/fileforge"
	defaultLogDir            = "~/.local/share/fileforge/logs"
	defaultObjectStoreDir    = "~/.local/share/fileforge/objects"
	defaultAPIBind           = "127.0.0.1:7519"
	defaultBrokerDriver      = "nats"
	defaultBrokerURL         = "nats://127.0.0.1:4222"
	defaultStreamName        = "FILEFORGE_JOBS"
	defaultMaxActions        = 16
	defaultJobTimeout        = 300
	defaultMaxAttempts       = 3
	defaultRetryBaseDelay    = 2
	defaultConsumeWait       = 5
	defaultReconcileInterval = 5
	defaultQueuedGracePeriod = 30
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultThumbWidth        = 256
	defaultThumbHeight       = 256
	defaultConvertFormat     = "png"
	defaultConvertQuality    = 85
	defaultCompressQuality   = 60
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultPreviewSeconds    = 10
	defaultVideoFormat       = "mp4"
	defaultAIBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultAIModel           = "google/gemini-3-flash-preview"
	defaultAITimeoutSeconds  = 60
	defaultAIMaxTags         = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Broker: Broker{
			Driver:     defaultBrokerDriver,
			URL:        defaultBrokerURL,
			StreamName: defaultStreamName,
		},
		ObjectStore: ObjectStore{
			Dir: defaultObjectStoreDir,
		},
		Pipeline: Pipeline{
			MaxActions: defaultMaxActions,
		},
		Workers: Workers{
			JobTimeout:     defaultJobTimeout,
			MaxAttempts:    defaultMaxAttempts,
			RetryBaseDelay: defaultRetryBaseDelay,
			ConsumeWait:    defaultConsumeWait,
		},
		Workflow: Workflow{
			ReconcileInterval: defaultReconcileInterval,
			QueuedGracePeriod: defaultQueuedGracePeriod,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Image: Image{
			ThumbWidth:      defaultThumbWidth,
			ThumbHeight:     defaultThumbHeight,
			ConvertFormat:   defaultConvertFormat,
			ConvertQuality:  defaultConvertQuality,
			CompressQuality: defaultCompressQuality,
		},
		Video: Video{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			PreviewSeconds: defaultPreviewSeconds,
			ConvertFormat:  defaultVideoFormat,
		},
		AI: AI{
			BaseURL:        defaultAIBaseURL,
			Model:          defaultAIModel,
			TimeoutSeconds: defaultAITimeoutSeconds,
			MaxTags:        defaultAIMaxTags,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
