package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig     = "ARKPROBE_CONFIG"
	EnvBaseURL    = "ARKPROBE_BASE_URL"
	EnvAdminEmail = "ARKPROBE_ADMIN_EMAIL"
	EnvSuite      = "ARKPROBE_SUITE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // ARKPROBE_CONFIG: override config file path
	BaseURL    string // ARKPROBE_BASE_URL: preferred base URL of the target
	AdminEmail string // ARKPROBE_ADMIN_EMAIL: identity used for admin requests
	Suite      string // ARKPROBE_SUITE: suite file path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		AdminEmail: os.Getenv(EnvAdminEmail),
		Suite:      os.Getenv(EnvSuite),
	}
}
