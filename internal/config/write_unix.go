//go:build !windows

package config

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeFile fsyncs and renames into place so a crash never leaves a torn config.
func writeFile(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
