package main

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	arg "github.com/alexflint/go-arg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticus-lab/go-pagecap/internal/assemble"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagecap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reader:\n  limit: 12\n"), 0o644))

	cfg, err := loadConfig(&args{Config: path, NoSandbox: true, Stealth: true})
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Reader.Limit)
	assert.True(t, cfg.Browser.NoSandbox)
	assert.True(t, cfg.Browser.Stealth)
	assert.False(t, cfg.Browser.Headful)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := loadConfig(&args{Config: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.ErrorContains(t, err, "load config")
}

func TestArgs_QuietIsSeparateFromJSONLogs(t *testing.T) {
	parse := func(argv ...string) args {
		var a args
		p, err := arg.NewParser(arg.Config{}, &a)
		require.NoError(t, err)
		require.NoError(t, p.Parse(argv))
		return a
	}

	a := parse("--json-logs", "capture", "http://reader.test/")
	assert.True(t, a.JSONLogs)
	assert.False(t, a.Quiet)

	a = parse("-q", "capture", "http://reader.test/")
	assert.True(t, a.Quiet)
	assert.False(t, a.JSONLogs)
	require.NotNil(t, a.Capture)
	assert.Equal(t, "http://reader.test/", a.Capture.URL)
}

func TestNewLogger(t *testing.T) {
	l := newLogger("warn", true)
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))

	l = newLogger("bogus", false)
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestRunInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 60)), nil))
	img := assemble.Image{Data: buf.Bytes(), Width: 40, Height: 60}

	doc, err := assemble.Assemble(context.Background(), []assemble.Page{
		{Image: img, Number: 1},
		{Image: img, Number: 2},
	}, assemble.Options{Title: "Info"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), doc.Filename)
	require.NoError(t, os.WriteFile(path, doc.Data, 0o644))
	assert.NoError(t, runInfo(&infoCmd{File: path}))

	assert.Error(t, runInfo(&infoCmd{File: filepath.Join(t.TempDir(), "missing.pdf")}))
}
