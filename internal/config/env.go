package config

import (
	"os"
	"strconv"
)

// applyEnvOverrides applies SPACKBRIDGE_* environment variables on top of
// whatever the YAML file provided. Only scalar knobs that operators commonly
// flip per-deployment are exposed this way.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Host, "SPACKBRIDGE_HOST")
	setInt(&cfg.Server.APIPort, "SPACKBRIDGE_API_PORT")
	setInt(&cfg.Server.AdminPort, "SPACKBRIDGE_ADMIN_PORT")

	setString(&cfg.Logging.Level, "SPACKBRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Format, "SPACKBRIDGE_LOG_FORMAT")

	setString(&cfg.Spack.Executable, "SPACKBRIDGE_SPACK_EXECUTABLE")
	setString(&cfg.Spack.GlobalRepo, "SPACKBRIDGE_SPACK_GLOBAL_REPO")
	setInt(&cfg.Spack.InstallTimeoutSeconds, "SPACKBRIDGE_INSTALL_TIMEOUT_SECONDS")

	setString(&cfg.Singularity.Image, "SPACKBRIDGE_SINGULARITY_IMAGE")

	setString(&cfg.Sessions.Root, "SPACKBRIDGE_SESSION_ROOT")
	setString(&cfg.Sessions.DatabasePath, "SPACKBRIDGE_SESSION_DB")

	setString(&cfg.Git.RepoURL, "SPACKBRIDGE_GIT_REPO_URL")

	setBool(&cfg.Events.Enabled, "SPACKBRIDGE_EVENTS_ENABLED")
	setString(&cfg.Events.NATSURL, "SPACKBRIDGE_NATS_URL")
	setString(&cfg.Events.Subject, "SPACKBRIDGE_EVENTS_SUBJECT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
