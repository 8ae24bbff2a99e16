package pagecap

import (
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
)

// resolveBrowser downloads a compatible Chromium binary if one is not
// already cached and returns the path to the executable. The binary is
// stored in ~/.cache/rod/browser (Unix) or %APPDATA%\rod\browser (Windows).
func resolveBrowser() (string, error) {
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("pagecap: downloading browser: %w", err)
	}
	return path, nil
}

// browserBin picks the executable: an explicit path, then one found on the
// system, then a download when allowed.
func browserBin(cfg capturerConfig) (string, error) {
	if cfg.chromePath != "" {
		return cfg.chromePath, nil
	}
	if path, ok := launcher.LookPath(); ok {
		return path, nil
	}
	if cfg.autoDownload {
		return resolveBrowser()
	}
	return "", ErrNoBrowser
}

// launch starts Chrome and returns its launcher and DevTools WebSocket URL.
func launch(cfg capturerConfig) (*launcher.Launcher, string, error) {
	bin, err := browserBin(cfg)
	if err != nil {
		return nil, "", err
	}

	l := launcher.New().
		Bin(bin).
		Headless(!cfg.headful).
		NoSandbox(cfg.noSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("disable-translate").
		Set("no-first-run")
	if cfg.stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}

	u, err := l.Launch()
	if err != nil {
		return nil, "", fmt.Errorf("pagecap: starting browser: %w", err)
	}
	return l, u, nil
}
