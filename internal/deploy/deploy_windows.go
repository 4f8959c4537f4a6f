//go:build windows

package deploy

import (
	"fmt"
	"os"
)

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("command does not exist: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("command is a directory: %s", path)
	}
	return nil
}
