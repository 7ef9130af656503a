package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/vistrive/assetnext/internal/log"
)

// Config holds the server configuration.
type Config struct {
	ListenAddr       string
	DataDir          string
	JWTSecret        string
	AgentDownloadURL string
}

// GetFlags returns the command-line flags for the server command.
func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:         "listen-addr",
			Usage:        "Server listen address (e.g., :8080)",
			DefaultValue: ":8080",
			EnvVars:      []string{"ASSETNEXT_LISTEN_ADDR"},
		},
		&cli.StringFlag{
			Name:         "data-dir",
			Usage:        "Data directory for the SQLite database",
			DefaultValue: "./data",
			EnvVars:      []string{"ASSETNEXT_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "HS256 secret for job and operator tokens",
			EnvVars: []string{"ASSETNEXT_JWT_SECRET"},
		},
		&cli.StringFlag{
			Name:         "agent-download-url",
			Usage:        "Base URL agents fetch the scanner bundle from",
			DefaultValue: "https://downloads.vistrive.com/assetnext-agent",
			EnvVars:      []string{"ASSETNEXT_AGENT_DOWNLOAD_URL"},
		},
	}
}

// Load reads the configuration from the parsed command flags. If no JWT
// secret is configured an ephemeral one is generated, which invalidates all
// outstanding tokens on restart.
func Load(cmd *cli.Command) (*Config, error) {
	cfg := &Config{
		ListenAddr:       cmd.GetString("listen-addr"),
		DataDir:          cmd.GetString("data-dir"),
		JWTSecret:        cmd.GetString("jwt-secret"),
		AgentDownloadURL: cmd.GetString("agent-download-url"),
	}

	if cfg.JWTSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating ephemeral jwt secret: %w", err)
		}
		cfg.JWTSecret = base64.RawURLEncoding.EncodeToString(buf)
		log.Warn("No JWT secret configured, using an ephemeral secret; tokens will not survive a restart")
	}

	return cfg, nil
}
