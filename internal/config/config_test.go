package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pagecap "github.com/porticus-lab/go-pagecap"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagecap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
browser:
  no_sandbox: true
  stealth: true
  timeout: 45s
reader:
  image_id: rendered-page
  next_selector: "button.next"
  limit: 120
timing:
  advance_settle: 2500ms
output:
  dir: /tmp/out
  page_size: Letter
  landscape: true
  margin: 0.5
  renderer: chrome
server:
  addr: ":9000"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Browser.NoSandbox)
	assert.True(t, cfg.Browser.Stealth)
	assert.Equal(t, 45*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "rendered-page", cfg.Reader.ImageID)
	assert.Equal(t, "button.next", cfg.Reader.Next)
	assert.Equal(t, 120, cfg.Reader.Limit)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timing.AdvanceSettle)
	assert.Zero(t, cfg.Timing.ProbeTimeout)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, ":9000", cfg.Server.Addr)

	pc := cfg.PageConfig()
	assert.Equal(t, pagecap.Letter, pc.Size)
	assert.Equal(t, pagecap.Landscape, pc.Orientation)
	assert.Equal(t, 0.5, pc.Margin)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "page-image", cfg.Reader.ImageID)
	assert.Equal(t, 50, cfg.Reader.Limit)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Equal(t, "a4", cfg.Output.PageSize)
	assert.Equal(t, "pdfcpu", cfg.Output.Renderer)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, pagecap.A4, cfg.PageConfig().Size)
}

func TestLoadFile_Invalid(t *testing.T) {
	_, err := LoadFile(writeFile(t, "output:\n  page_size: b5\n"))
	assert.ErrorContains(t, err, "page size")

	_, err = LoadFile(writeFile(t, "output:\n  renderer: latex\n"))
	assert.ErrorContains(t, err, "renderer")

	_, err = LoadFile(writeFile(t, "browser: [not, a, map]\n"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCapturerOptions(t *testing.T) {
	cfg := Default()
	base := len(cfg.CapturerOptions(nil))

	cfg.Browser.NoSandbox = true
	cfg.Browser.Headful = true
	cfg.Output.Renderer = "chrome"
	assert.Len(t, cfg.CapturerOptions(nil), base+3)
}
