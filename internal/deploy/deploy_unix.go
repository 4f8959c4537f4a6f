//go:build unix

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
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("command is not executable: %s", path)
	}
	return nil
}
