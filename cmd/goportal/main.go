package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	goPortal "github.com/MrEthical07/goPortal"
	"github.com/MrEthical07/goPortal/internal/config"
	"github.com/MrEthical07/goPortal/internal/logger"
	"github.com/MrEthical07/goPortal/metrics/export/prometheus"
)

var errUsage = errors.New("usage")

type app struct {
	cfg        *config.Config
	log        *logger.Logger
	stateDir   string
	in         *bufio.Reader
	out        io.Writer
	errOut     io.Writer
	readSecret func(prompt string) (string, error)
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel, os.Stderr)

	stateDir, err := os.UserConfigDir()
	if err != nil {
		stateDir = os.TempDir()
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		stateDir:   filepath.Join(stateDir, "goportal"),
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		errOut:     os.Stderr,
		readSecret: readTerminalSecret,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			a.usage()
			os.Exit(2)
		}
		log.Fatal("command failed", "error", err)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("goportal", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(a.errOut)
	baseURL := fs.String("base-url", a.cfg.BaseURL, "portal backend base URL")
	showMetrics := fs.Bool("metrics", a.cfg.Metrics, "print client metrics to stderr after the command")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	a.cfg.BaseURL = *baseURL
	a.cfg.Metrics = *showMetrics

	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}

	client, closeFn, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	err = cmd.run(ctx, a, client, rest[1:])
	if a.cfg.Metrics {
		fmt.Fprint(a.errOut, prometheus.NewExporter(client).Render())
	}
	return err
}

// auditSink writes events as JSON lines when PORTAL_AUDIT_FORMAT=json and
// through the logger otherwise.
func (a *app) auditSink() goPortal.AuditSink {
	if a.cfg.Audit.Format == "json" {
		return goPortal.NewJSONWriterSink(a.errOut)
	}
	return goPortal.NewSlogSink(a.log.Logger)
}

// client builds a portal client from the environment and restores any
// persisted session.
func (a *app) client(ctx context.Context) (*goPortal.Client, func(), error) {
	b := goPortal.New().
		WithConfig(a.cfg.Portal(a.stateDir)).
		WithLogger(a.log.Logger)
	var rdb *redis.Client
	if a.cfg.Session.Storage == string(goPortal.StorageRedis) {
		rdb = redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr})
		b = b.WithRedis(rdb)
	}
	if a.cfg.Audit.Enabled {
		b = b.WithAuditSink(a.auditSink())
	}
	client, err := b.Build()
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, err
	}
	closeFn := func() {
		client.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	if _, _, err := client.Hydrate(ctx); err != nil {
		a.log.Warn("could not restore session", "error", err)
	}
	return client, closeFn, nil
}

func (a *app) usage() {
	fmt.Fprintln(a.errOut, "usage: goportal [--base-url URL] [--metrics] <command> [flags]")
	fmt.Fprintln(a.errOut)
	fmt.Fprintln(a.errOut, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(a.errOut, "  %-15s %s\n", name, commands[name].summary)
	}
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.errOut, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ":")), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readTerminalSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for password prompt, use --password-file")
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
