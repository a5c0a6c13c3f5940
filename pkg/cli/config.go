package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/repository"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Repository
	backend     string
	dataPath    string
	project     string
	database    string
	namespace   string
	credentials string

	// Endpoints
	textEndpoint   string
	imageEndpoint  string
	modelsEndpoint string
	apiEndpoint    string

	// Completion backends
	llm              string
	geminiProject    string
	geminiLocation   string
	geminiModel      string
	anthropicAPIKey  string
	anthropicBaseURL string
	claudeModel      string
	openaiAPIKey     string
	openaiBaseURL    string
	openaiModel      string

	// Storage of saved images
	bucket       string
	bucketPrefix string
	saveDir      string

	// Speech
	ttsCommand string
	sttCommand string

	// Presentation
	configFile string
	theme      string
	logLevel   string
	plain      bool

	// seeded from the config file on first launch
	personalization model.Personalization
	screensaver     *model.ScreensaverSettings
}

// fileConfig is the layout of the optional YAML config file
type fileConfig struct {
	Backend       string                     `yaml:"backend"`
	Data          string                     `yaml:"data"`
	LLM           string                     `yaml:"llm"`
	Theme         string                     `yaml:"theme"`
	LogLevel      string                     `yaml:"log_level"`
	TextEndpoint  string                     `yaml:"text_endpoint"`
	ImageEndpoint string                     `yaml:"image_endpoint"`
	SaveDir       string                     `yaml:"save_dir"`
	TTSCommand    string                     `yaml:"tts_command"`
	STTCommand    string                     `yaml:"stt_command"`
	Personalize   model.Personalization      `yaml:"personalization"`
	Screensaver   *model.ScreensaverSettings `yaml:"screensaver"`
}

func defaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "chatterbox", "chatterbox.db")
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("CHATTERBOX_CONFIG"),
			Destination: &cfg.configFile,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Persistence backend (sqlite, firestore, memory)",
			Value:       "sqlite",
			Sources:     cli.EnvVars("CHATTERBOX_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "data",
			Usage:       "Path of the SQLite database",
			Value:       defaultDataPath(),
			Sources:     cli.EnvVars("CHATTERBOX_DATA"),
			Destination: &cfg.dataPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "namespace",
			Usage:       "Firestore namespace separating users of one database",
			Sources:     cli.EnvVars("CHATTERBOX_NAMESPACE"),
			Destination: &cfg.namespace,
		},
		&cli.StringFlag{
			Name:        "credentials",
			Usage:       "Google Cloud credentials JSON file",
			Sources:     cli.EnvVars("CHATTERBOX_CREDENTIALS"),
			Destination: &cfg.credentials,
		},
		&cli.StringFlag{
			Name:        "text-endpoint",
			Usage:       "Chat completion endpoint",
			Value:       adapter.DefaultTextEndpoint,
			Sources:     cli.EnvVars("CHATTERBOX_TEXT_ENDPOINT"),
			Destination: &cfg.textEndpoint,
		},
		&cli.StringFlag{
			Name:        "image-endpoint",
			Usage:       "Image generation URL prefix",
			Value:       model.DefaultImagePrefix,
			Sources:     cli.EnvVars("CHATTERBOX_IMAGE_ENDPOINT"),
			Destination: &cfg.imageEndpoint,
		},
		&cli.StringFlag{
			Name:        "models-endpoint",
			Usage:       "Model listing endpoint",
			Value:       adapter.DefaultModelsEndpoint,
			Sources:     cli.EnvVars("CHATTERBOX_MODELS_ENDPOINT"),
			Destination: &cfg.modelsEndpoint,
		},
		&cli.StringFlag{
			Name:        "api-endpoint",
			Usage:       "User registration and visitor counting API",
			Value:       adapter.DefaultAPIEndpoint,
			Sources:     cli.EnvVars("CHATTERBOX_API_ENDPOINT"),
			Destination: &cfg.apiEndpoint,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for saved images",
			Sources:     cli.EnvVars("CHATTERBOX_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "bucket-prefix",
			Usage:       "Object prefix inside the bucket",
			Sources:     cli.EnvVars("CHATTERBOX_BUCKET_PREFIX"),
			Destination: &cfg.bucketPrefix,
		},
		&cli.StringFlag{
			Name:        "save-dir",
			Usage:       "Directory for saved images when no bucket is set",
			Value:       ".",
			Sources:     cli.EnvVars("CHATTERBOX_SAVE_DIR"),
			Destination: &cfg.saveDir,
		},
		&cli.StringFlag{
			Name:        "tts-command",
			Usage:       "Shell command speaking stdin (default: espeak-ng, espeak or say)",
			Sources:     cli.EnvVars("CHATTERBOX_TTS_COMMAND"),
			Destination: &cfg.ttsCommand,
		},
		&cli.StringFlag{
			Name:        "stt-command",
			Usage:       "Shell command printing transcripts of the microphone",
			Sources:     cli.EnvVars("CHATTERBOX_STT_COMMAND"),
			Destination: &cfg.sttCommand,
		},
		&cli.StringFlag{
			Name:        "theme",
			Usage:       "Color theme (overrides the saved one)",
			Sources:     cli.EnvVars("CHATTERBOX_THEME"),
			Destination: &cfg.theme,
		},
		&cli.BoolFlag{
			Name:        "plain",
			Usage:       "Disable colors, highlighting and the spinner",
			Sources:     cli.EnvVars("CHATTERBOX_PLAIN"),
			Destination: &cfg.plain,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "warn",
			Sources:     cli.EnvVars("CHATTERBOX_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm",
			Usage:       "Completion backend (pollinations, gemini, claude, openai)",
			Value:       "pollinations",
			Sources:     cli.EnvVars("CHATTERBOX_LLM"),
			Destination: &cfg.llm,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "anthropic-base-url",
			Usage:       "Anthropic API base URL",
			Sources:     cli.EnvVars("ANTHROPIC_BASE_URL"),
			Destination: &cfg.anthropicBaseURL,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name",
			Sources:     cli.EnvVars("CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "OpenAI compatible API base URL",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI model name",
			Value:       "gpt-4o-mini",
			Sources:     cli.EnvVars("OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
	}
}

// loadFile applies the YAML config file. Flags set explicitly keep their values.
func (cfg *config) loadFile(c *cli.Command) error {
	if cfg.configFile == "" {
		return nil
	}
	raw, err := os.ReadFile(cfg.configFile)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configFile))
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configFile))
	}

	fill := func(flag string, dst *string, v string) {
		if v != "" && !c.IsSet(flag) {
			*dst = v
		}
	}
	fill("backend", &cfg.backend, fc.Backend)
	fill("data", &cfg.dataPath, fc.Data)
	fill("llm", &cfg.llm, fc.LLM)
	fill("theme", &cfg.theme, fc.Theme)
	fill("log-level", &cfg.logLevel, fc.LogLevel)
	fill("text-endpoint", &cfg.textEndpoint, fc.TextEndpoint)
	fill("image-endpoint", &cfg.imageEndpoint, fc.ImageEndpoint)
	fill("save-dir", &cfg.saveDir, fc.SaveDir)
	fill("tts-command", &cfg.ttsCommand, fc.TTSCommand)
	fill("stt-command", &cfg.sttCommand, fc.STTCommand)

	cfg.personalization = fc.Personalize
	if fc.Screensaver != nil {
		s := *fc.Screensaver
		s.Normalize()
		cfg.screensaver = &s
	}
	return nil
}

func (cfg *config) newLogger(w io.Writer) *slog.Logger {
	return logging.New(cfg.logLevel, w)
}

func (cfg *config) clientOptions() []option.ClientOption {
	if cfg.credentials == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.credentials)}
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.backend {
	case "", "sqlite":
		repo, err := repository.NewSQLite(cfg.dataPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database, cfg.namespace, cfg.clientOptions()...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	case "memory":
		return repository.NewMemory(), nil

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

func (cfg *config) newPollinations() *adapter.Pollinations {
	return adapter.NewPollinations(
		adapter.WithTextEndpoint(cfg.textEndpoint),
		adapter.WithModelsEndpoint(cfg.modelsEndpoint),
	)
}

// newCompleter creates the completion backend selected by --llm
func (cfg *config) newCompleter(ctx context.Context) (interfaces.Completer, error) {
	switch cfg.llm {
	case "", "pollinations":
		return cfg.newPollinations(), nil

	case "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		var opts []adapter.GeminiOption
		if cfg.geminiModel != "" {
			opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
		}
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini client")
		}
		return gemini, nil

	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		var opts []adapter.ClaudeOption
		if cfg.claudeModel != "" {
			opts = append(opts, adapter.WithClaudeModel(cfg.claudeModel))
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, cfg.anthropicBaseURL, opts...), nil

	case "openai":
		if cfg.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required")
		}
		return adapter.NewOpenAI(cfg.openaiAPIKey, cfg.openaiBaseURL, cfg.openaiModel), nil

	default:
		return nil, goerr.New("unknown llm backend", goerr.V("llm", cfg.llm))
	}
}

// newStorage creates the destination of saved images. A bucket wins over the local directory.
func (cfg *config) newStorage(ctx context.Context) (interfaces.Storage, error) {
	if cfg.bucket == "" {
		return adapter.NewFileStorage(cfg.saveDir), nil
	}

	storage, err := adapter.NewGCSStorage(ctx, cfg.bucket, cfg.bucketPrefix, cfg.clientOptions()...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newSpeechEngine returns nil when no speech command is available
func (cfg *config) newSpeechEngine(ctx context.Context) *adapter.CommandSynth {
	synth, err := adapter.NewCommandSynth(cfg.ttsCommand)
	if err != nil {
		logging.From(ctx).Debug("speech synthesis disabled", "error", err)
		return nil
	}
	return synth
}

// newTranscriber returns nil when no recognition command is configured
func (cfg *config) newTranscriber(ctx context.Context) *adapter.CommandRecognizer {
	if cfg.sttCommand == "" {
		return nil
	}
	rec, err := adapter.NewCommandRecognizer(cfg.sttCommand)
	if err != nil {
		logging.From(ctx).Warn("speech recognition disabled", "error", err)
		return nil
	}
	return rec
}
