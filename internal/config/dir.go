package config

import (
	"os"
	"path/filepath"
	"strings"
)

const envConfigDir = "REQSTAGE_CONFIG_DIR"

// Dir is where settings and storage files live. The env override
// exists for tests and portable installs.
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv(envConfigDir)); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return ".reqstage"
		}
		return filepath.Join(home, ".reqstage")
	}
	return filepath.Join(base, "reqstage")
}
