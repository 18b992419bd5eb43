package browser

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

const envBrowsersPath = "PLAYWRIGHT_BROWSERS_PATH"

// Prober locates engine executables. Every field is a seam over the host
// filesystem so discovery can be exercised without installed browsers.
type Prober struct {
	GOOS     string
	Stat     func(name string) (fs.FileInfo, error)
	LookPath func(file string) (string, error)
	Glob     func(pattern string) ([]string, error)
	Getenv   func(key string) string
	HomeDir  func() (string, error)
}

// HostProber returns a Prober backed by the local operating system.
func HostProber() Prober {
	return Prober{
		GOOS:     runtime.GOOS,
		Stat:     os.Stat,
		LookPath: exec.LookPath,
		Glob:     filepath.Glob,
		Getenv:   os.Getenv,
		HomeDir:  os.UserHomeDir,
	}
}

// probeResult is the outcome of locating one engine.
type probeResult struct {
	path   string
	source string
	reason string
}

func (r probeResult) found() bool { return r.reason == "" }

// probe runs the lookup chain for k: configured path, driver-managed
// bundle, well-known install paths, then PATH.
func (p Prober) probe(k Kind, configured string) probeResult {
	if configured != "" {
		if p.exists(configured) {
			return probeResult{path: configured, source: SourceConfigured}
		}
		return probeResult{reason: fmt.Sprintf("configured executable %s not found", configured)}
	}

	if k.Bundle != "" {
		if dir := p.bundleDir(k.Bundle); dir != "" {
			return probeResult{path: dir, source: SourceBundled}
		}
	}

	for _, candidate := range k.Paths[p.GOOS] {
		path := os.Expand(candidate, p.Getenv)
		if p.exists(path) {
			return probeResult{path: path, source: SourceSystem}
		}
	}

	for _, cmd := range k.Commands {
		if path, err := p.LookPath(cmd); err == nil {
			return probeResult{path: path, source: SourceSystem}
		}
	}

	if k.Bundle != "" && len(k.Paths[p.GOOS]) == 0 && len(k.Commands) == 0 {
		return probeResult{reason: "driver-managed " + k.Name + " build not installed"}
	}
	return probeResult{reason: "not installed"}
}

func (p Prober) exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := p.Stat(path)
	return err == nil && !info.IsDir()
}

// bundleDir returns the newest driver-managed build directory for prefix.
func (p Prober) bundleDir(prefix string) string {
	root := p.browsersRoot()
	if root == "" {
		return ""
	}
	matches, err := p.Glob(filepath.Join(root, prefix+"*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// browsersRoot resolves the browsers cache the automation driver installs
// engines into.
func (p Prober) browsersRoot() string {
	if v := p.Getenv(envBrowsersPath); v != "" && v != "0" {
		return v
	}
	switch p.GOOS {
	case "windows":
		if v := p.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "ms-playwright")
		}
		return ""
	case "darwin":
		home, err := p.HomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, "Library", "Caches", "ms-playwright")
	default:
		if v := p.Getenv("XDG_CACHE_HOME"); v != "" {
			return filepath.Join(v, "ms-playwright")
		}
		home, err := p.HomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, ".cache", "ms-playwright")
	}
}
