package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress     string
	AuthToken       string
	ShutdownTimeout time.Duration

	GeminiAPIKey  string
	GeminiModelID string

	AssemblyAIKey string

	DeepgramKey        string
	DeepgramVoiceModel string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	DefaultUserName string
	DefaultLanguage string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - analysis will not work")
	}
	geminiModel := os.Getenv("GEMINI_MODEL_ID")
	if geminiModel == "" {
		geminiModel = "gemini-2.5-flash"
	}

	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - voice questions will be disabled")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - narration will be disabled")
	}
	voiceModel := os.Getenv("DEEPGRAM_VOICE_MODEL")
	if voiceModel == "" {
		voiceModel = "aura-2-thalia-en"
	}

	lang := os.Getenv("DEFAULT_LANGUAGE")
	if lang == "" {
		lang = "en-US"
	}

	shutdown := 10 * time.Second
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			shutdown = d
		} else {
			log.Printf("Warning: invalid SHUTDOWN_TIMEOUT %q, using %s", v, shutdown)
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s GEMINI_MODEL_ID=%s", addr, geminiModel)
	return Config{
		HTTPAddress:        addr,
		AuthToken:          os.Getenv("SESSION_AUTH_TOKEN"),
		ShutdownTimeout:    shutdown,
		GeminiAPIKey:       geminiKey,
		GeminiModelID:      geminiModel,
		AssemblyAIKey:      assemblyKey,
		DeepgramKey:        deepgramKey,
		DeepgramVoiceModel: voiceModel,
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     os.Getenv("SUPABASE_BUCKET"),
		DefaultUserName:    os.Getenv("DEFAULT_USER_NAME"),
		DefaultLanguage:    lang,
	}
}
