// pagecap captures the pages of a browser-based document reader into a PDF.
//
// Usage:
//
//	pagecap capture [options] <url>
//	pagecap page [options] <url>
//	pagecap serve [options] <url>
//	pagecap info <file.pdf>
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	pagecap "github.com/porticus-lab/go-pagecap"
	"github.com/porticus-lab/go-pagecap/internal/assemble"
	"github.com/porticus-lab/go-pagecap/internal/config"
	"github.com/porticus-lab/go-pagecap/internal/server"
)

type captureCmd struct {
	URL    string `arg:"positional,required" help:"URL of the reader"`
	Limit  int    `arg:"-n,--limit" help:"maximum number of pages to capture (default: reader.limit, 50)"`
	Out    string `arg:"-o,--out" help:"output folder (default: output.dir)"`
	Title  string `arg:"-t,--title" help:"document title (default: the page title)"`
	Output string `arg:"-f,--file" help:"output file name (default: derived from title and page range)"`
}

type pageCmd struct {
	URL    string `arg:"positional,required" help:"URL of the reader"`
	Out    string `arg:"-o,--out" help:"output folder (default: output.dir)"`
	Title  string `arg:"-t,--title" help:"document title (default: the page title)"`
	Output string `arg:"-f,--file" help:"output file name"`
}

type serveCmd struct {
	URL  string `arg:"positional,required" help:"URL of the reader"`
	Addr string `arg:"-a,--addr" help:"listen address (default: server.addr)"`
}

type infoCmd struct {
	File string `arg:"positional,required" help:"PDF file"`
}

type args struct {
	Capture *captureCmd `arg:"subcommand:capture" help:"capture pages until the limit or the end of the document"`
	Page    *pageCmd    `arg:"subcommand:page" help:"capture the page currently shown"`
	Serve   *serveCmd   `arg:"subcommand:serve" help:"open the reader and serve the control API"`
	Info    *infoCmd    `arg:"subcommand:info" help:"display the size and page count of a PDF"`

	Config    string `arg:"-c,--config" help:"path to a pagecap.yaml config file"`
	LogLevel  string `arg:"--log-level" default:"info" help:"log level: debug, info, warn, error"`
	JSONLogs  bool   `arg:"--json-logs" help:"write logs as JSON"`
	Quiet     bool   `arg:"-q,--quiet" help:"hide the progress bar"`
	NoSandbox bool   `arg:"--no-sandbox" help:"disable the Chrome sandbox"`
	Headful   bool   `arg:"--headful" help:"show the browser window"`
	Stealth   bool   `arg:"--stealth" help:"hide automation fingerprints"`
}

func (args) Description() string {
	return "pagecap - capture a document reader's pages into a PDF\n"
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing command: capture, page, serve or info")
	}

	logger := newLogger(a.LogLevel, a.JSONLogs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, &a); err != nil {
		logger.Error("pagecap: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string, asJSON bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, logger *slog.Logger, a *args) error {
	if a.Info != nil {
		return runInfo(a.Info)
	}

	cfg, err := loadConfig(a)
	if err != nil {
		return err
	}

	switch {
	case a.Capture != nil:
		return runCapture(ctx, logger, cfg, a.Capture, a.Quiet)
	case a.Page != nil:
		return runPage(ctx, logger, cfg, a.Page)
	case a.Serve != nil:
		return runServe(ctx, logger, cfg, a.Serve)
	}
	return nil
}

func loadConfig(a *args) (*config.Config, error) {
	cfg := config.Default()
	if a.Config != "" {
		var err error
		if cfg, err = config.LoadFile(a.Config); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if a.NoSandbox {
		cfg.Browser.NoSandbox = true
	}
	if a.Headful {
		cfg.Browser.Headful = true
	}
	if a.Stealth {
		cfg.Browser.Stealth = true
	}
	return cfg, nil
}

func newProgressBar(limit int, silent bool) *progressbar.ProgressBar {
	if silent {
		return progressbar.DefaultSilent(int64(limit), "Capturing pages")
	}
	return progressbar.NewOptions(limit,
		progressbar.OptionSetDescription("Capturing pages"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

// runCapture implements the "capture" command.
func runCapture(ctx context.Context, logger *slog.Logger, cfg *config.Config, cmd *captureCmd, quiet bool) error {
	limit := cmd.Limit
	if limit <= 0 {
		limit = cfg.Reader.Limit
	}

	bar := newProgressBar(limit, quiet)
	opts := append(cfg.CapturerOptions(logger), pagecap.WithProgress(func(e pagecap.Event) {
		switch e.Kind {
		case pagecap.EventPageCaptured:
			bar.Add(1)
		case pagecap.EventPageFailed:
			bar.Describe(fmt.Sprintf("Capturing pages (page %d failed)", e.Page))
		}
	}))

	c, err := pagecap.NewCapturer(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	r, err := c.Open(ctx, cmd.URL)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer r.Close()

	out, runErr := r.Run(ctx, limit)
	bar.Finish()
	logger.Info("pagecap: capture finished",
		"state", out.State,
		"reason", out.Reason,
		"captured", out.Captured,
		"failures", out.Failures)

	if r.Status().Pages == 0 {
		if runErr != nil {
			return runErr
		}
		return pagecap.ErrEmptySession
	}

	// Pages captured before an interrupt are still written out.
	doc, err := r.Generate(context.WithoutCancel(ctx), &pagecap.GenerateOptions{
		Title:    cmd.Title,
		Filename: cmd.Output,
		Page:     cfg.PageConfig(),
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := save(doc, cmd.Out, cfg.Output.Dir); err != nil {
		return err
	}
	return runErr
}

// runPage implements the "page" command.
func runPage(ctx context.Context, logger *slog.Logger, cfg *config.Config, cmd *pageCmd) error {
	c, err := pagecap.NewCapturer(cfg.CapturerOptions(logger)...)
	if err != nil {
		return err
	}
	defer c.Close()

	r, err := c.Open(ctx, cmd.URL)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer r.Close()

	doc, err := r.CaptureSingle(ctx, &pagecap.GenerateOptions{
		Title:    cmd.Title,
		Filename: cmd.Output,
		Page:     cfg.PageConfig(),
	})
	if err != nil {
		return err
	}
	return save(doc, cmd.Out, cfg.Output.Dir)
}

func save(doc *pagecap.Document, dir, fallback string) error {
	if dir == "" {
		dir = fallback
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output folder: %w", err)
	}
	path, err := doc.Save(dir)
	if err != nil {
		return fmt.Errorf("writing %s: %w", doc.Filename, err)
	}
	fmt.Printf("%s (%d pages, %d bytes)\n", path, doc.Pages, doc.Len())
	return nil
}

// runServe implements the "serve" command.
func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config, cmd *serveCmd) error {
	addr := cmd.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	c, err := pagecap.NewCapturer(cfg.CapturerOptions(logger)...)
	if err != nil {
		return err
	}
	defer c.Close()

	r, err := c.Open(ctx, cmd.URL)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer r.Close()

	api := server.New(r, server.Options{
		Limit:  cfg.Reader.Limit,
		Page:   cfg.PageConfig(),
		Logger: logger,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("pagecap: serving control API", "addr", addr, "url", cmd.URL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("pagecap: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		api.Close()
		return err
	})
	return g.Wait()
}

// runInfo implements the "info" command.
func runInfo(cmd *infoCmd) error {
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cmd.File, err)
	}
	n, err := assemble.CountPages(data)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cmd.File, err)
	}

	fmt.Printf("File:  %s\n", cmd.File)
	fmt.Printf("Size:  %d bytes\n", len(data))
	fmt.Printf("Pages: %d\n", n)
	return nil
}
