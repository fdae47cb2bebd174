package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the runtime configuration for the preference engine.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where the engine stores its local data
	DSN string
	// Driver is the local database driver (sqlite or postgres)
	Driver string
	// Addr is the binding address for the self-hosted sync server
	Addr string
	// Port is the binding port for the self-hosted sync server
	Port int
	// RemoteBaseURL is the base URL of the remote document store.
	// Empty means the device runs without a sync backend.
	RemoteBaseURL string
	// RemoteToken is the opaque bearer token for the remote store
	RemoteToken string
	// PullInterval is how often the agent pulls from the remote store
	PullInterval time.Duration
	// BackupKeepCount is how many backups are retained per user
	BackupKeepCount int
	// Version is the current engine version
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from EUNIO_* environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("EUNIO_MODE", "dev")
	p.Data = getEnvOrDefault("EUNIO_DATA", ".")
	p.DSN = os.Getenv("EUNIO_DSN")
	p.Driver = getEnvOrDefault("EUNIO_DRIVER", "sqlite")
	p.Addr = getEnvOrDefault("EUNIO_ADDR", "")
	p.Port = getIntEnvOrDefault("EUNIO_PORT", 8230)
	p.RemoteBaseURL = os.Getenv("EUNIO_REMOTE_URL")
	p.RemoteToken = os.Getenv("EUNIO_REMOTE_TOKEN")
	p.PullInterval = time.Duration(getIntEnvOrDefault("EUNIO_PULL_INTERVAL_MINUTES", 15)) * time.Minute
	p.BackupKeepCount = getIntEnvOrDefault("EUNIO_BACKUP_KEEP", 10)
}

// Validate normalizes the profile and fails fast on unusable settings.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}

	dataDir, err := filepath.Abs(p.Data)
	if err != nil {
		return errors.Wrapf(err, "unable to resolve data directory %q", p.Data)
	}
	if _, err := os.Stat(dataDir); err != nil {
		return errors.Wrapf(err, "unable to access data directory %q", dataDir)
	}
	p.Data = dataDir

	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(p.Data, fmt.Sprintf("eunio_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for postgres driver")
		}
	default:
		return errors.Errorf("unknown driver %q: only 'sqlite' and 'postgres' are supported", p.Driver)
	}

	if p.PullInterval < 5*time.Minute {
		p.PullInterval = 5 * time.Minute
	}
	if p.BackupKeepCount <= 0 {
		p.BackupKeepCount = 10
	}
	return nil
}

// New creates a profile from the environment.
func New(version string) (*Profile, error) {
	p := &Profile{Version: version}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
