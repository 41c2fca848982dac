package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cfg holds all runtime configuration loaded from environment variables.
type Cfg struct {
	// Server
	ListenAddr string     // e.g. :8080
	LogLevel   slog.Level // LOG_LEVEL=debug|info|warn|error

	// Remote classification service
	RemoteEnabled   bool          // SAFEGUARD_REMOTE=true consults the service
	RemoteEndpoints []string      // SAFEGUARD_API_ENDPOINTS=http://a:8000,http://b:8000
	RemoteTimeout   time.Duration // SAFEGUARD_REMOTE_TIMEOUT=5s
	RemoteImages    bool          // SAFEGUARD_REMOTE_IMAGES=true sends images to /analyze_image
	SigningKey      string        // hex secp256k1 key; empty disables request signing
	CacheTTL        time.Duration // SAFEGUARD_CACHE_TTL=5m, 0 disables the verdict cache
	ScrubPII        bool          // SAFEGUARD_SCRUB_PII=false sends text unmasked (default true)

	// Storage
	SettingsFile string // empty keeps settings in memory
	TaxonomyFile string // optional YAML override of the built-in keyword lists

	// Pages
	PageTTL       time.Duration // idle page sessions are dropped after this
	BlockPageBase string        // SAFEGUARD_BLOCK_PAGE=chrome-extension://<id>/blocked.html
}

// Load reads .env (if present) then environment variables and returns Cfg.
func Load() (*Cfg, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var level slog.Level
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	endpoints, err := parseEndpoints(os.Getenv("SAFEGUARD_API_ENDPOINTS"))
	if err != nil {
		return nil, err
	}

	remoteTimeout, err := duration("SAFEGUARD_REMOTE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := duration("SAFEGUARD_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	pageTTL, err := duration("SAFEGUARD_PAGE_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	scrub := strings.TrimSpace(os.Getenv("SAFEGUARD_SCRUB_PII"))

	blockPage := strings.TrimSpace(os.Getenv("SAFEGUARD_BLOCK_PAGE"))
	if blockPage == "" {
		blockPage = "/blocked.html"
	}

	return &Cfg{
		ListenAddr:      ":" + port,
		LogLevel:        level,
		RemoteEnabled:   flag("SAFEGUARD_REMOTE"),
		RemoteEndpoints: endpoints,
		RemoteTimeout:   remoteTimeout,
		RemoteImages:    flag("SAFEGUARD_REMOTE_IMAGES"),
		SigningKey:      strings.TrimSpace(os.Getenv("SAFEGUARD_SIGNING_KEY")),
		CacheTTL:        cacheTTL,
		ScrubPII:        scrub == "" || flag("SAFEGUARD_SCRUB_PII"),
		SettingsFile:    strings.TrimSpace(os.Getenv("SAFEGUARD_SETTINGS_FILE")),
		TaxonomyFile:    strings.TrimSpace(os.Getenv("SAFEGUARD_TAXONOMY_FILE")),
		PageTTL:         pageTTL,
		BlockPageBase:   blockPage,
	}, nil
}

func flag(name string) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw == "1" || strings.EqualFold(raw, "true")
}

func duration(name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// parseEndpoints splits "url1,url2" into base URLs, trimming trailing
// slashes. An empty value yields the local development service.
func parseEndpoints(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"http://localhost:8000"}, nil
	}
	var out []string
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "http://") && !strings.HasPrefix(part, "https://") {
			return nil, fmt.Errorf("endpoint %d (%q) must be an http or https URL", i+1, part)
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("SAFEGUARD_API_ENDPOINTS is set but contains no valid entries")
	}
	return out, nil
}
