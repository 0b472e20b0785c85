package config

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem abstracts filesystem operations for testing
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
	UserHomeDir() (string, error)
}

// RealFileSystem implements FileSystem using actual OS calls
type RealFileSystem struct{}

func (r *RealFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (r *RealFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (r *RealFileSystem) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// Loader handles loading and merging configurations
type Loader struct {
	fs FileSystem
}

// NewLoader creates a new Loader with the given filesystem
func NewLoader(fs FileSystem) *Loader {
	return &Loader{fs: fs}
}

// NewDefaultLoader creates a Loader with real filesystem operations
func NewDefaultLoader() *Loader {
	return &Loader{fs: &RealFileSystem{}}
}

// LoadGlobal loads the global configuration from ~/.ragweaver/config.yaml
func (l *Loader) LoadGlobal() (*GlobalConfig, error) {
	home, err := l.fs.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return l.LoadGlobalFromPath(filepath.Join(home, ".ragweaver", "config.yaml"))
}

// LoadGlobalFromPath loads global config from a specific path
func (l *Loader) LoadGlobalFromPath(path string) (*GlobalConfig, error) {
	return loadGlobalWithFS(path, l.fs)
}

// FindOverrides walks up from startDir to the nearest .ragweaver.yaml
func (l *Loader) FindOverrides(startDir string) (string, error) {
	return findOverridesWithFS(startDir, l.fs)
}

// LoadOverrides loads a pipeline-local .ragweaver.yaml file
func (l *Loader) LoadOverrides(path string) (*Overrides, error) {
	return loadOverridesWithFS(path, l.fs)
}

// Resolve loads the global config, applies any local overrides found
// under startDir and returns the runtime settings.
func (l *Loader) Resolve(startDir string) (*Settings, error) {
	global, err := l.LoadGlobal()
	if err != nil {
		return nil, err
	}
	var overrides *Overrides
	if path, err := l.FindOverrides(startDir); err == nil && path != "" {
		overrides, err = l.LoadOverrides(path)
		if err != nil {
			return nil, err
		}
	}
	return Merge(global, overrides)
}
