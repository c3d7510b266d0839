package loader

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config file base names, in lookup order.
var conventionNames = []string{"proxy", "webpack", "vue"}

var conventionExts = []string{".yaml", ".yml", ".json"}

// Locate finds the proxy configuration file in dir by convention: a
// dedicated proxy config first, then webpack, then vue.
func Locate(dir string) (string, error) {
	for _, name := range conventionNames {
		for _, ext := range conventionExts {
			candidate := filepath.Join(dir, name+".config"+ext)
			info, err := os.Stat(candidate)
			if err == nil && !info.IsDir() {
				return filepath.Abs(candidate)
			}
		}
	}
	return "", fmt.Errorf("%w: no proxy, webpack or vue config in %s", ErrConfigNotFound, dir)
}

// Resolve returns the absolute path of an explicit config path, or locates
// one in dir when path is empty.
func Resolve(path, dir string) (string, error) {
	if path == "" {
		return Locate(dir)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrConfigNotFound, path)
	}
	return filepath.Clean(path), nil
}
