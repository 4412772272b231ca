package config

// Defaults returns the built-in configuration. Values follow the layout of
// the spack builder deployment: sessions under /tmp, the shared repo and
// container image in the service account's home.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			APIPort:   8000,
			AdminPort: 8001,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Spack: SpackConfig{
			Executable:            "spack",
			GlobalRepo:            "/home/ubuntu/spack-repo",
			TempRoots:             []string{"/tmp"},
			QueryTimeoutSeconds:   300,
			InstallTimeoutSeconds: 7200,
			CreateTimeoutSeconds:  120,
		},
		Singularity: SingularityConfig{
			Executable:      "singularity",
			Image:           "/home/ubuntu/spack.sif",
			SystemBinds:     []string{"/usr/bin/zsh", "/mnt/data"},
			ReposConfigDest: "/home/ubuntu/.spack/repos.yaml",
			PackagesDest:    "/home/ubuntu/r-spack-recipe-builder/packages",
		},
		Sessions: SessionsConfig{
			Root:                 "/tmp",
			DatabasePath:         "spackbridge-sessions.db",
			TTLHours:             72,
			SweepIntervalMinutes: 60,
		},
		Git: GitConfig{
			RepoURL:       "https://github.com/wtsi-hgi/spack-repo.git",
			RepoPath:      "/home/ubuntu/spack-repo",
			DefaultBranch: "main",
			AuthorName:    "mercury",
			AuthorEmail:   "mercury@sanger.ac.uk",
			Retry: RetryConfig{
				Backoff:        RetryBackoffLinear,
				InitialSeconds: 1,
				MaxSeconds:     30,
				MaxRetries:     2,
			},
		},
		Events: EventsConfig{
			Enabled: false,
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "spackbridge.install.events",
		},
	}
}
