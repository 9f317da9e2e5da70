package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"dewolf/internal/engine"
)

// AppConfig holds all server configuration.
// Priority (lowest → highest): defaults < .env file < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Server
	DB   string `json:"db"   env:"DB"`   // database connection string
	Dev  bool   `json:"dev"  env:"DEV"`  // dev mode: verbose logging
	Addr string `json:"addr" env:"ADDR"` // HTTP listen address

	// Logging (extended diagnostics, off by default)
	LogOutputDir string `json:"log_output_dir" env:"LOG_OUTPUT_DIR"`
	LogRequests  bool   `json:"log_requests"   env:"LOG_REQUESTS"`
	LogDB        bool   `json:"log_db"         env:"LOG_DB"`
	LogWS        bool   `json:"log_ws"         env:"LOG_WS"`
	LogDebug     bool   `json:"log_debug"      env:"LOG_DEBUG"`

	// Phase timings
	FirstDay          time.Duration `json:"first_day"          env:"FIRST_DAY"`
	MorningDiscussion time.Duration `json:"morning_discussion" env:"MORNING_DISCUSSION"`
	Voting            time.Duration `json:"voting"             env:"VOTING"`
	NightAction       time.Duration `json:"night_action"       env:"NIGHT_ACTION"`
	WitchAction       time.Duration `json:"witch_action"       env:"WITCH_ACTION"`

	AllDeadPolicy string `json:"all_dead_policy" env:"ALL_DEAD_POLICY"` // none | werewolves | villagers

	// Per-connection throttle on incoming WebSocket messages
	SubmitRate  float64 `json:"submit_rate"  env:"SUBMIT_RATE"`  // messages per second
	SubmitBurst int     `json:"submit_burst" env:"SUBMIT_BURST"`

	// AI Storyteller
	StorytellerProvider    string `json:"storyteller_provider"    env:"STORYTELLER_PROVIDER"`    // ollama | openai | claude | gemini | groq | openai-compatible
	StorytellerModel       string `json:"storyteller_model"       env:"STORYTELLER_MODEL"`
	StorytellerOllamaURL   string `json:"storyteller_ollama_url"  env:"STORYTELLER_OLLAMA_URL"`
	StorytellerURL         string `json:"storyteller_url"         env:"STORYTELLER_URL"`         // base URL for openai-compatible
	StorytellerAPIKey      string `json:"storyteller_api_key"     env:"STORYTELLER_API_KEY"`     // API key for openai-compatible
	StorytellerTemperature string `json:"storyteller_temperature" env:"STORYTELLER_TEMPERATURE"` // float 0-1 as string
	StorytellerThinking    string `json:"storyteller_thinking"    env:"STORYTELLER_THINKING"`    // none | low | medium | high | auto
	GroqAPIKey             string `json:"groq_api_key"            env:"GROQ_API_KEY"`
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		OutputDir:   cfg.LogOutputDir,
		LogRequests: cfg.LogRequests,
		LogDB:       cfg.LogDB,
		LogWS:       cfg.LogWS,
		Debug:       cfg.LogDebug || cfg.Dev,
	}
}

func (cfg AppConfig) timings() engine.Timings {
	return engine.Timings{
		FirstDay:   cfg.FirstDay,
		Discussion: cfg.MorningDiscussion,
		Vote:       cfg.Voting,
		Night:      cfg.NightAction,
		Witch:      cfg.WitchAction,
	}
}

// validate checks the values the engine and hub depend on.
func (cfg AppConfig) validate() error {
	if _, err := engine.ParseAllDeadPolicy(cfg.AllDeadPolicy); err != nil {
		return err
	}
	if cfg.SubmitRate <= 0 || cfg.SubmitBurst <= 0 {
		return fmt.Errorf("submit_rate and submit_burst must be positive")
	}
	for name, d := range map[string]time.Duration{
		"first_day":          cfg.FirstDay,
		"morning_discussion": cfg.MorningDiscussion,
		"voting":             cfg.Voting,
		"night_action":       cfg.NightAction,
		"witch_action":       cfg.WitchAction,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

func defaultConfig() AppConfig {
	t := engine.DefaultTimings()
	return AppConfig{
		DB:                   "file::memory:?cache=shared",
		Addr:                 ":8080",
		FirstDay:             t.FirstDay,
		MorningDiscussion:    t.Discussion,
		Voting:               t.Vote,
		NightAction:          t.Night,
		WitchAction:          t.Witch,
		AllDeadPolicy:        "none",
		SubmitRate:           5,
		SubmitBurst:          10,
		StorytellerOllamaURL: "http://localhost:11434",
	}
}

// loadConfig builds a config by layering: defaults → .env → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after parsing.
func loadConfig(configPath, dotenvPath string) AppConfig {
	cfg := defaultConfig()

	// Layer 1: .env only fills variables the environment does not already set
	if err := godotenv.Load(dotenvPath); err == nil {
		log.Printf("Config: loaded %s", dotenvPath)
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", dotenvPath, err)
	}

	// Layer 2: env vars; unset variables keep the defaults
	if err := env.Parse(&cfg); err != nil {
		log.Printf("Config: failed to parse environment: %v", err)
	}

	// Layer 3: JSON config file, only fields present in the file override env vars
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			log.Printf("Config: failed to parse %s: %v", configPath, err)
		} else {
			applyJSONOverlay(&cfg, overlay)
			log.Printf("Config: loaded from %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", configPath, err)
	}

	return cfg
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) {
	set := func(key string, dst any) {
		if v, ok := m[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				log.Printf("Config: bad value for %s: %v", key, err)
			}
		}
	}
	// Durations are written as "45s" or as a number of seconds.
	duration := func(key string, dst *time.Duration) {
		v, ok := m[key]
		if !ok {
			return
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			if d, err := time.ParseDuration(s); err == nil {
				*dst = d
				return
			}
		}
		var secs float64
		if err := json.Unmarshal(v, &secs); err != nil {
			log.Printf("Config: bad duration for %s: %s", key, v)
			return
		}
		*dst = time.Duration(secs * float64(time.Second))
	}

	set("db", &cfg.DB)
	set("dev", &cfg.Dev)
	set("addr", &cfg.Addr)
	set("log_output_dir", &cfg.LogOutputDir)
	set("log_requests", &cfg.LogRequests)
	set("log_db", &cfg.LogDB)
	set("log_ws", &cfg.LogWS)
	set("log_debug", &cfg.LogDebug)
	duration("first_day", &cfg.FirstDay)
	duration("morning_discussion", &cfg.MorningDiscussion)
	duration("voting", &cfg.Voting)
	duration("night_action", &cfg.NightAction)
	duration("witch_action", &cfg.WitchAction)
	set("all_dead_policy", &cfg.AllDeadPolicy)
	set("submit_rate", &cfg.SubmitRate)
	set("submit_burst", &cfg.SubmitBurst)
	set("storyteller_provider", &cfg.StorytellerProvider)
	set("storyteller_model", &cfg.StorytellerModel)
	set("storyteller_ollama_url", &cfg.StorytellerOllamaURL)
	set("storyteller_url", &cfg.StorytellerURL)
	set("storyteller_api_key", &cfg.StorytellerAPIKey)
	set("storyteller_temperature", &cfg.StorytellerTemperature)
	set("storyteller_thinking", &cfg.StorytellerThinking)
	set("groq_api_key", &cfg.GroqAPIKey)
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	fs                     *flag.FlagSet
	configPath             *string
	dotenvPath             *string
	db                     *string
	dev                    *bool
	addr                   *string
	logOutputDir           *string
	logRequests            *bool
	logDB                  *bool
	logWS                  *bool
	logDebug               *bool
	firstDay               *time.Duration
	morningDiscussion      *time.Duration
	voting                 *time.Duration
	nightAction            *time.Duration
	witchAction            *time.Duration
	allDeadPolicy          *string
	submitRate             *float64
	submitBurst            *int
	storytellerProvider    *string
	storytellerModel       *string
	storytellerOllamaURL   *string
	storytellerURL         *string
	storytellerAPIKey      *string
	storytellerTemperature *string
	storytellerThinking    *string
	groqAPIKey             *string
}

// registerFlags registers all CLI flags on fs and returns pointers to their values.
// Parse fs after this, then applyTo to layer them over the loaded config.
func registerFlags(fs *flag.FlagSet) flagValues {
	return flagValues{
		fs:                     fs,
		configPath:             fs.String("config", "config.json", "path to JSON config file"),
		dotenvPath:             fs.String("env-file", ".env", "path to .env file"),
		db:                     fs.String("db", "", "database connection string"),
		dev:                    fs.Bool("dev", false, "enable development mode (debug logging)"),
		addr:                   fs.String("addr", "", "HTTP listen address (e.g. :8080)"),
		logOutputDir:           fs.String("log-output-dir", "", "directory for extended log files"),
		logRequests:            fs.Bool("log-requests", false, "log HTTP requests and responses"),
		logDB:                  fs.Bool("log-db", false, "log database dumps"),
		logWS:                  fs.Bool("log-ws", false, "log WebSocket messages"),
		logDebug:               fs.Bool("log-debug", false, "enable debug logging"),
		firstDay:               fs.Duration("first-day", 0, "first morning discussion length"),
		morningDiscussion:      fs.Duration("morning-discussion", 0, "morning discussion length"),
		voting:                 fs.Duration("voting", 0, "day vote length"),
		nightAction:            fs.Duration("night-action", 0, "night action window length"),
		witchAction:            fs.Duration("witch-action", 0, "witch window length"),
		allDeadPolicy:          fs.String("all-dead-policy", "", "winner when everyone dies: none|werewolves|villagers"),
		submitRate:             fs.Float64("submit-rate", 0, "WebSocket messages per second per connection"),
		submitBurst:            fs.Int("submit-burst", 0, "WebSocket message burst per connection"),
		storytellerProvider:    fs.String("storyteller-provider", "", "AI storyteller provider (ollama|openai|claude|gemini|groq|openai-compatible)"),
		storytellerModel:       fs.String("storyteller-model", "", "AI storyteller model name"),
		storytellerOllamaURL:   fs.String("storyteller-ollama-url", "", "Ollama server URL"),
		storytellerURL:         fs.String("storyteller-url", "", "base URL for openai-compatible provider"),
		storytellerAPIKey:      fs.String("storyteller-api-key", "", "API key for storyteller provider"),
		storytellerTemperature: fs.String("storyteller-temperature", "", "sampling temperature 0-1"),
		storytellerThinking:    fs.String("storyteller-thinking", "", "thinking mode: none|low|medium|high|auto"),
		groqAPIKey:             fs.String("groq-api-key", "", "Groq API key"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(cfg *AppConfig) {
	fv.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DB = *fv.db
		case "dev":
			cfg.Dev = *fv.dev
		case "addr":
			cfg.Addr = *fv.addr
		case "log-output-dir":
			cfg.LogOutputDir = *fv.logOutputDir
		case "log-requests":
			cfg.LogRequests = *fv.logRequests
		case "log-db":
			cfg.LogDB = *fv.logDB
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "first-day":
			cfg.FirstDay = *fv.firstDay
		case "morning-discussion":
			cfg.MorningDiscussion = *fv.morningDiscussion
		case "voting":
			cfg.Voting = *fv.voting
		case "night-action":
			cfg.NightAction = *fv.nightAction
		case "witch-action":
			cfg.WitchAction = *fv.witchAction
		case "all-dead-policy":
			cfg.AllDeadPolicy = *fv.allDeadPolicy
		case "submit-rate":
			cfg.SubmitRate = *fv.submitRate
		case "submit-burst":
			cfg.SubmitBurst = *fv.submitBurst
		case "storyteller-provider":
			cfg.StorytellerProvider = *fv.storytellerProvider
		case "storyteller-model":
			cfg.StorytellerModel = *fv.storytellerModel
		case "storyteller-ollama-url":
			cfg.StorytellerOllamaURL = *fv.storytellerOllamaURL
		case "storyteller-url":
			cfg.StorytellerURL = *fv.storytellerURL
		case "storyteller-api-key":
			cfg.StorytellerAPIKey = *fv.storytellerAPIKey
		case "storyteller-temperature":
			cfg.StorytellerTemperature = *fv.storytellerTemperature
		case "storyteller-thinking":
			cfg.StorytellerThinking = *fv.storytellerThinking
		case "groq-api-key":
			cfg.GroqAPIKey = *fv.groqAPIKey
		}
	})
}
