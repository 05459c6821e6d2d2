// Package environment resolves host paths that can be relocated, e.g. when running in a container.
package environment

import (
	"os"
	"path/filepath"
)

const (
	KeyHostSys = "HOST_SYS"
	KeyHostRun = "HOST_RUN"
)

// GetEnvPath joins elem to the root read from the key environment variable, or to fallback when unset.
func GetEnvPath(key, fallback string, elem ...string) string {
	root := os.Getenv(key)
	if root == "" {
		root = fallback
	}

	return filepath.Join(append([]string{root}, elem...)...)
}
