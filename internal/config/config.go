package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/soaringjerry/questionflow/internal/services"
	"github.com/soaringjerry/questionflow/internal/utils"
)

type Config struct {
	Addr           string        `env:"QUESTIONFLOW_ADDR" envDefault:":8000"`
	DBDriver       string        `env:"QUESTIONFLOW_DB_DRIVER" envDefault:"sqlite3"`
	DBDSN          string        `env:"QUESTIONFLOW_DB_DSN" envDefault:"questionflow.db"`
	MigrationsDir  string        `env:"QUESTIONFLOW_MIGRATIONS_DIR"`
	JWTSecret      string        `env:"QUESTIONFLOW_JWT_SECRET"`
	TokenTTL       time.Duration `env:"QUESTIONFLOW_TOKEN_TTL" envDefault:"24h"`
	SeedFile       string        `env:"QUESTIONFLOW_SEED_FILE"`
	TotalQuestions int           `env:"QUESTIONFLOW_TOTAL_QUESTIONS" envDefault:"10"`
	TerminalMarker string        `env:"QUESTIONFLOW_TERMINAL_MARKER" envDefault:"end"`
	CORSOrigins    []string      `env:"QUESTIONFLOW_CORS_ORIGINS" envSeparator:","`
	Locales        []string      `env:"QUESTIONFLOW_LOCALES" envSeparator:"," envDefault:"en,zh"`
	DefaultLocale  string        `env:"QUESTIONFLOW_DEFAULT_LOCALE" envDefault:"en"`
	Commit         string        `env:"QUESTIONFLOW_COMMIT"`
	BuildTime      string        `env:"QUESTIONFLOW_BUILD_TIME"`
}

// Load reads an optional .env file (or the given files) and then the environment.
// Variables already set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || len(files) > 0 {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	return Parse()
}

func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "memory", "sqlite", "sqlite3", "postgres", "postgresql", "pg":
	default:
		return fmt.Errorf("QUESTIONFLOW_DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	if c.TotalQuestions <= 0 {
		return fmt.Errorf("QUESTIONFLOW_TOTAL_QUESTIONS must be positive, got %d", c.TotalQuestions)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("QUESTIONFLOW_TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
	if err := c.normalizeLocales(); err != nil {
		return err
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		log.Printf("config: QUESTIONFLOW_JWT_SECRET not set, using a random secret; tokens will not survive a restart")
		c.JWTSecret = secret
	}
	return nil
}

func (c *Config) normalizeLocales() error {
	var locales []string
	for _, l := range c.Locales {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || slices.Contains(locales, l) {
			continue
		}
		if !utils.HasLocale(l) {
			return fmt.Errorf("QUESTIONFLOW_LOCALES: no translations for %q", l)
		}
		locales = append(locales, l)
	}
	if len(locales) == 0 {
		locales = append([]string(nil), utils.SupportedLocales...)
	}
	c.Locales = locales
	c.DefaultLocale = strings.ToLower(strings.TrimSpace(c.DefaultLocale))
	if c.DefaultLocale == "" {
		c.DefaultLocale = locales[0]
	}
	if !slices.Contains(c.Locales, c.DefaultLocale) {
		return fmt.Errorf("QUESTIONFLOW_DEFAULT_LOCALE %q is not one of QUESTIONFLOW_LOCALES", c.DefaultLocale)
	}
	return nil
}

func (c *Config) Questionnaire() services.QuestionnaireConfig {
	return services.QuestionnaireConfig{TotalQuestions: c.TotalQuestions, TerminalMarker: c.TerminalMarker}
}

func (c *Config) UsesMemoryStore() bool { return c.DBDriver == "memory" }

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
