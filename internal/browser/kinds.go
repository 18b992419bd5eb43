package browser

import (
	"strings"

	"github.com/seantiz/xbrowse/internal/model"
)

// Kind describes how to find one engine on the local machine.
type Kind struct {
	Name    string
	Family  string
	Channel string

	// Paths maps GOOS to candidate executable locations. Entries may
	// reference environment variables ($LOCALAPPDATA).
	Paths map[string][]string

	// Commands are executable names looked up on PATH.
	Commands []string

	// Bundle is the directory prefix of a driver-managed browser build
	// inside the browsers cache (e.g. "chromium-").
	Bundle string
}

// aliases maps alternative engine names onto registry names.
var aliases = map[string]string{
	"google-chrome": model.EngineChrome,
	"msedge":        model.EngineEdge,
	"safari":        model.EngineWebKit,
}

// Canonical normalizes an engine name as given by a user or config file.
func Canonical(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

// DefaultKinds returns the engine kinds probed when the registry is not
// given an explicit list.
func DefaultKinds() []Kind {
	return []Kind{
		{
			Name:    model.EngineChrome,
			Family:  model.FamilyChromium,
			Channel: "chrome",
			Paths: map[string][]string{
				"windows": {
					`C:\Program Files\Google\Chrome\Application\chrome.exe`,
					`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
					`$LOCALAPPDATA\Google\Chrome\Application\chrome.exe`,
				},
				"darwin": {"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
				"linux":  {"/usr/bin/google-chrome", "/opt/google/chrome/chrome"},
			},
			Commands: []string{"google-chrome", "google-chrome-stable"},
		},
		{
			Name:    model.EngineEdge,
			Family:  model.FamilyChromium,
			Channel: "msedge",
			Paths: map[string][]string{
				"windows": {
					`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
					`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
				},
				"darwin": {"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
				"linux":  {"/usr/bin/microsoft-edge", "/opt/microsoft/msedge/msedge"},
			},
			Commands: []string{"microsoft-edge", "microsoft-edge-stable"},
		},
		{
			Name:   model.EngineChromium,
			Family: model.FamilyChromium,
			Bundle: "chromium-",
			Paths: map[string][]string{
				"linux": {"/usr/bin/chromium", "/usr/bin/chromium-browser"},
			},
			Commands: []string{"chromium", "chromium-browser"},
		},
		{
			Name:   model.EngineFirefox,
			Family: model.FamilyFirefox,
			Bundle: "firefox-",
		},
		{
			Name:   model.EngineWebKit,
			Family: model.FamilyWebKit,
			Bundle: "webkit-",
		},
	}
}

func familyCapabilities(family string) Capabilities {
	switch family {
	case model.FamilyChromium:
		return Capabilities{Headless: true, Screenshots: true, WindowSize: true, LaunchArgs: true}
	case model.FamilyFirefox:
		return Capabilities{Headless: true, Screenshots: true, WindowSize: true, LaunchArgs: true, Prefs: true}
	case model.FamilyWebKit:
		return Capabilities{Headless: true, Screenshots: true, WindowSize: true}
	default:
		return Capabilities{}
	}
}
