package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"FinPulse/internal/di"
	"FinPulse/internal/domain/models"
	"FinPulse/internal/scheduler"
	"FinPulse/internal/usecase"
	"FinPulse/pkg/config"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitBadInput = 2
)

var (
	//go:embed config.example.yaml
	configTemplate string
	//go:embed env.example
	envTemplate string
)

var markets = []string{"all", "stocks", "crypto", "news"}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "config file path (default $"+config.PathEnv+" or "+config.DefaultPath+")")
	return fs, path
}

func loadConfig(flagValue string, stderr io.Writer) (*config.Config, bool) {
	path := config.ResolvePath(flagValue)
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		if config.IsNotExist(err) {
			fmt.Fprintf(stderr, "config %s not found; run `finpulse init` to create one\n", path)
		} else {
			printErrors(stderr, err)
		}
		return nil, false
	}
	if err := di.ValidateConfig(cfg); err != nil {
		printErrors(stderr, err)
		return nil, false
	}
	return cfg, true
}

// printErrors writes one line per joined error.
func printErrors(w io.Writer, err error) {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			printErrors(w, e)
		}
		return
	}
	fmt.Fprintln(w, err)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runAnalyze(args []string, stdout, stderr io.Writer) int {
	fs, cfgPath := newFlagSet("analyze", stderr)
	market := fs.String("market", "all", "source group: "+strings.Join(markets, ", "))
	out := fs.String("o", "", "write a Markdown report to this file")
	dryRun := fs.Bool("dry-run", false, "evaluate rules without sending notifications")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if !validMarket(*market) {
		fmt.Fprintf(stderr, "invalid -market %q: want one of %s\n", *market, strings.Join(markets, ", "))
		return exitBadInput
	}

	cfg, ok := loadConfig(*cfgPath, stderr)
	if !ok {
		return exitBadInput
	}
	a, cleanup, err := di.InitializeAnalyzer(cfg, di.RunOptions{Market: *market, DryRun: *dryRun, OneShot: true})
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return exitBadInput
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()
	tick := models.TickInfo{ID: uuid.NewString(), Trigger: "analyze", At: time.Now()}
	report, err := a.Pipeline.Run(ctx, tick, a.State, nil)
	if err != nil {
		fmt.Fprintf(stderr, "analyze: %v\n", err)
		return exitFailure
	}

	printReport(stdout, report, *dryRun)
	if *out != "" {
		if err := os.WriteFile(*out, []byte(usecase.RenderMarkdown(report)), 0o644); err != nil {
			fmt.Fprintf(stderr, "write report: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "\nreport written to %s\n", *out)
	}
	if !report.Produced() {
		return exitFailure
	}
	return exitOK
}

func validMarket(m string) bool {
	for _, v := range markets {
		if m == v {
			return true
		}
	}
	return false
}

func printReport(w io.Writer, r *models.TickReport, dryRun bool) {
	fmt.Fprintf(w, "tick %s  %s\n", r.Tick.ID, r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "records: %d (quotes %d, news %d)\n\n", r.Records, r.Quotes, r.News)
	if r.Summary != "" {
		fmt.Fprintln(w, r.Summary)
	}
	if r.Verdict != nil {
		fmt.Fprintf(w, "\n%s\n", usecase.VerdictLine(r.Verdict))
		if r.Verdict.Rationale != "" {
			fmt.Fprintln(w, r.Verdict.Rationale)
		}
	}
	if len(r.Alerts) > 0 {
		label := "alerts"
		if dryRun {
			label = "alerts (dry run, not sent)"
		}
		fmt.Fprintf(w, "\n%s:\n", label)
		for _, a := range r.Alerts {
			fmt.Fprintf(w, "  [%s] %s\n", strings.ToUpper(string(a.Severity)), a.Message)
		}
	}
	if r.Dispatch != nil {
		for _, f := range r.Dispatch.Failed() {
			fmt.Fprintf(w, "  delivery to %s failed: %s\n", f.Channel, f.Error)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nwarnings:")
		for _, msg := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
}

func runMonitor(args []string, stdout, stderr io.Writer) int {
	fs, cfgPath := newFlagSet("monitor", stderr)
	once := fs.Bool("once", false, "run a single tick and exit")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	cfg, ok := loadConfig(*cfgPath, stderr)
	if !ok {
		return exitBadInput
	}
	app, cleanup, err := di.InitializeMonitor(cfg, di.RunOptions{OneShot: *once})
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return exitBadInput
	}
	defer cleanup()

	if *once {
		ctx, stop := signalContext()
		defer stop()
		if err := app.RunOnce(ctx); err != nil {
			fmt.Fprintf(stderr, "monitor: %v\n", err)
			return exitFailure
		}
		if r := app.Scheduler().LastReport(); r != nil {
			printReport(stdout, r, false)
		}
		return exitOK
	}
	if err := app.Run(context.Background()); err != nil {
		fmt.Fprintf(stderr, "monitor: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runTestNotify(args []string, stdout, stderr io.Writer) int {
	fs, cfgPath := newFlagSet("test-notify", stderr)
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	cfg, ok := loadConfig(*cfgPath, stderr)
	if !ok {
		return exitBadInput
	}
	sink, cleanup, err := di.InitializeNotifier(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return exitBadInput
	}
	defer cleanup()

	if len(sink.Channels()) == 0 {
		fmt.Fprintln(stderr, "no notification channels enabled")
		return exitFailure
	}

	ctx, stop := signalContext()
	defer stop()
	text := fmt.Sprintf("FinPulse test message\nsent %s", time.Now().Format("2006-01-02 15:04:05 MST"))
	report := sink.Send(ctx, text)

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tSTATUS\tDETAILS")
	for _, res := range report.Results {
		status, details := "ok", res.Duration.Round(time.Millisecond).String()
		if !res.OK {
			status, details = "failed", res.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Channel, status, details)
	}
	_ = tw.Flush()

	if report.Delivered() == 0 {
		return exitFailure
	}
	return exitOK
}

func runConfigCheck(args []string, stdout, stderr io.Writer) int {
	fs, cfgPath := newFlagSet("config-check", stderr)
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	cfg, ok := loadConfig(*cfgPath, stderr)
	if !ok {
		return exitBadInput
	}

	fmt.Fprintf(stdout, "config %s is valid\n\n", config.ResolvePath(*cfgPath))
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	enabled := cfg.EnabledSources()
	groups := map[string]int{}
	for _, s := range enabled {
		groups[s.MarketGroup()]++
	}
	fmt.Fprintf(tw, "sources\t%d enabled (stocks %d, crypto %d, news %d)\n",
		len(enabled), groups["stocks"], groups["crypto"], groups["news"])
	if cfg.LLM.Disabled {
		fmt.Fprintln(tw, "llm\tdisabled")
	} else {
		fmt.Fprintf(tw, "llm\t%s / %s\n", cfg.LLM.Provider, cfg.LLM.ModelOrDefault())
	}
	fmt.Fprintf(tw, "rules\t%d\n", len(cfg.Rules))
	fmt.Fprintf(tw, "channels\t%s\n", orNone(enabledChannels(cfg.Notifications)))
	fmt.Fprintf(tw, "dedup\t%s\n", cfg.Dedup.Backend)
	triggers, err := scheduler.BuildTriggers(cfg.Scheduler.Triggers, time.Now())
	if err == nil {
		for _, t := range triggers {
			line := "next " + t.Next().Format(time.RFC3339)
			if c, ok := t.(*scheduler.CronTrigger); ok {
				line += " (" + c.Spec() + ")"
			}
			fmt.Fprintf(tw, "trigger %s\t%s\n", t.Name(), line)
		}
	}
	_ = tw.Flush()
	return exitOK
}

func enabledChannels(n config.NotificationsConfig) []string {
	var out []string
	if n.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if n.WeChat.Enabled {
		out = append(out, "wechat")
	}
	for _, w := range n.Webhooks {
		out = append(out, w.Name)
	}
	if n.Kafka.Enabled {
		out = append(out, "kafka")
	}
	if n.RedisQueue.Enabled {
		out = append(out, "redis_queue")
	}
	return out
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", ".", "directory to write the templates into")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return exitFailure
	}
	files := []struct {
		name string
		body string
		perm os.FileMode
	}{
		{name: config.DefaultPath, body: configTemplate, perm: 0o644},
		{name: ".env", body: envTemplate, perm: 0o600},
	}
	for _, f := range files {
		path := filepath.Join(*dir, f.name)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(stdout, "skip %s: already exists\n", path)
			continue
		}
		if err := os.WriteFile(path, []byte(f.body), f.perm); err != nil {
			fmt.Fprintf(stderr, "init: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
	}
	return exitOK
}
