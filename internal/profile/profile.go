package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the cradle server and CLI.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where conversations are stored
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// AI Configuration
	AIProvider   string // CRADLE_AI_PROVIDER (default: openai)
	AIAPIKey     string // CRADLE_AI_API_KEY
	AIBaseURL    string // CRADLE_AI_BASE_URL (default: https://api.openai.com/v1)
	AIModel      string // CRADLE_AI_MODEL (default: gpt-4o-mini)
	UserNickname string // CRADLE_USER_NICKNAME (default: User)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// HasCredentials reports whether an API key is configured.
func (p *Profile) HasCredentials() bool {
	return p.AIAPIKey != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads AI configuration from CRADLE_* environment variables.
// Values already set on the profile win over the environment.
func (p *Profile) FromEnv() {
	fill := func(dst *string, key, defaultValue string) {
		if *dst != "" {
			return
		}
		*dst = getEnvOrDefault(key, defaultValue)
	}

	fill(&p.AIProvider, "CRADLE_AI_PROVIDER", "openai")
	fill(&p.AIAPIKey, "CRADLE_AI_API_KEY", "")
	fill(&p.AIBaseURL, "CRADLE_AI_BASE_URL", "https://api.openai.com/v1")
	fill(&p.AIModel, "CRADLE_AI_MODEL", "gpt-4o-mini")
	fill(&p.UserNickname, "CRADLE_USER_NICKNAME", "User")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "cradle")
		} else {
			p.Data = "/var/opt/cradle"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}
	if p.Mode == "prod" {
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("cradle_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
