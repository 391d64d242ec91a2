package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/lifetrack/lifetrack/broadcast"
	"github.com/lifetrack/lifetrack/internal/config"
	"github.com/lifetrack/lifetrack/internal/lifecycle"
	"github.com/lifetrack/lifetrack/internal/logging"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/internal/osutil"
	"github.com/lifetrack/lifetrack/internal/pathutil"
	"github.com/lifetrack/lifetrack/internal/static"
	"github.com/lifetrack/lifetrack/internal/timeutil"
	"github.com/lifetrack/lifetrack/internal/ui"
	"github.com/lifetrack/lifetrack/reconcile"
	"github.com/lifetrack/lifetrack/report"
)

const (
	envNoColor          = "NO_COLOR"
	envLifetrackNoColor = "LIFETRACK_NO_COLOR"
)

// tickInterval is how often watch records the elapsed study time.
const tickInterval = time.Minute

// firstNonEmptyString returns its first non-empty argument, or "" if all
// arguments are empty.
func firstNonEmptyString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}

	return ""
}

// interactive reports whether stdin is a terminal.
func interactive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	return fi.Mode()&os.ModeCharDevice != 0
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	err := pathutil.Initialize()
	if err != nil {
		return nil, err
	}

	sys := pathutil.Must().System()

	opts := []config.Option{config.WithPaths(sys)}

	if interactive() {
		opts = append(opts, config.WithPromptConfig(sys.ConfigPath))
	}

	opts = append(
		opts,
		config.WithViperConfig(sys.ConfigPath),
		config.WithCLIConfig(ctx),
	)

	return config.New(opts...)
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}

	log, closer := logging.New(logging.Options{
		Path:       cfg.System.LogPath,
		Level:      level,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
	})

	slog.SetDefault(log)

	return log, closer, nil
}

// withEnv loads the configuration, opens the environment and passes it to
// fn. Everything is closed when fn returns.
func withEnv(fn func(ctx *cli.Context, e *env) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		log, closer, err := newLogger(cfg)
		if err != nil {
			return err
		}

		defer closer.Close()

		err = static.Install(appName)
		if err != nil {
			log.Warn("installing static files", slog.Any("error", err))
		}

		e, err := open(ctx.Context, cfg, log)
		if err != nil {
			return err
		}

		defer e.Close()

		return fn(ctx, e)
	}
}

// mount runs reconciliation for kind and then picks up a remote session
// that has no local counterpart. An expired session needs a decision, taken
// from the flags or asked for on the terminal.
func (e *env) mount(ctx context.Context, kind models.Kind) error {
	out, err := e.engine.Check(ctx, kind)
	if err != nil {
		return errReconcile.Fmt(kind).Wrap(err)
	}

	report.PrintOutcome(out)

	if out.NeedsConfirmation {
		d, err := e.decide(out)
		if err != nil {
			return err
		}

		err = e.engine.Resolve(d)
		if err != nil {
			return err
		}

		if d == reconcile.End {
			err = e.end(ctx, kind)
			if err != nil {
				return err
			}

			report.Success("Ended the expired %s session", kind)
		}
	}

	action, err := e.tracker(kind).Sync(ctx)
	if err != nil {
		return errReconcile.Fmt(kind).Wrap(err)
	}

	if action == lifecycle.Adopted {
		pterm.Info.Printfln("Picked up the %s session running elsewhere", kind)
	}

	return nil
}

func (e *env) decide(out reconcile.Outcome) (reconcile.Decision, error) {
	switch e.cfg.CLI.Yes {
	case config.YesContinue:
		return reconcile.Continue, nil
	case config.YesEnd:
		return reconcile.End, nil
	}

	if !interactive() {
		return reconcile.Continue, errDecisionNeeded.Fmt(out.Kind)
	}

	keep, err := ui.Confirm(
		fmt.Sprintf("Your %s session is still running", out.Kind),
		fmt.Sprintf(
			"It was started %.1f hours ago. Keep it going?",
			out.Validation.AgeHours,
		),
		"Continue",
		"End it",
	)
	if err != nil {
		return reconcile.Continue, err
	}

	if keep {
		return reconcile.Continue, nil
	}

	return reconcile.End, nil
}

func (e *env) clock(t time.Time) string {
	return timeutil.Clock(t.Local(), e.cfg.Display.TwentyFourHour)
}

func workoutStartAction(ctx *cli.Context, e *env) error {
	err := e.mount(ctx.Context, models.Workout)
	if err != nil {
		return err
	}

	sess, err := e.workouts.Start(
		ctx.Context,
		ctx.String("label"),
		e.cfg.CLI.StartTime,
	)
	if err != nil {
		return err
	}

	report.Success("Workout started at %s", e.clock(sess.StartedAt))

	return nil
}

func workoutLogAction(ctx *cli.Context, e *env) error {
	err := e.mount(ctx.Context, models.Workout)
	if err != nil {
		return err
	}

	lift, err := e.workouts.LogLift(ctx.Context, models.Lift{
		Exercise: ctx.String("exercise"),
		Reps:     ctx.Int("reps"),
		Weight:   ctx.Float64("weight"),
	})
	if err != nil {
		return err
	}

	report.Success(
		"Logged %s: %d x %g",
		lift.Exercise,
		lift.Reps,
		lift.Weight,
	)

	return nil
}

func workoutEndAction(ctx *cli.Context, e *env) error {
	err := e.mount(ctx.Context, models.Workout)
	if err != nil {
		return err
	}

	sess, err := e.workouts.End(ctx.Context)
	if err != nil {
		return err
	}

	report.Success(
		"Workout ended after %s with %d sets",
		timeutil.FormatDuration(e.state.Now().Sub(sess.StartedAt)),
		len(sess.Sets),
	)

	return nil
}

func studyStartAction(ctx *cli.Context, e *env) error {
	err := e.mount(ctx.Context, models.Study)
	if err != nil {
		return err
	}

	sess, err := e.studies.Start(
		ctx.Context,
		ctx.String("bucket"),
		e.cfg.CLI.StartTime,
	)
	if err != nil {
		return err
	}

	report.Success(
		"Studying %s since %s",
		sess.Bucket(),
		e.clock(sess.StartedAt),
	)

	return nil
}

func studyNoteAction(ctx *cli.Context, e *env) error {
	text := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if text == "" {
		return errEmptyNote
	}

	err := e.mount(ctx.Context, models.Study)
	if err != nil {
		return err
	}

	_, err = e.studies.Note(ctx.Context, text)
	if err != nil {
		return err
	}

	report.Success("Note added")

	return nil
}

func studyEndAction(ctx *cli.Context, e *env) error {
	err := e.mount(ctx.Context, models.Study)
	if err != nil {
		return err
	}

	sess, err := e.studies.End(ctx.Context, ctx.String("notes"))
	if err != nil {
		return err
	}

	report.Success(
		"Studied %s for %s",
		sess.Bucket(),
		timeutil.FormatDuration(time.Duration(sess.ElapsedSeconds)*time.Second),
	)

	return nil
}

// refresh reconciles the local session before it is shown. The running
// kind is checked, or every kind when nothing runs locally. An expired
// session is left for a workout or study command to resolve and is shown as
// expired.
func (e *env) refresh(ctx context.Context, quiet bool) error {
	kinds := models.Kinds
	if cur := e.state.Current(); cur != nil {
		kinds = []models.Kind{cur.Kind}
	}

	for _, kind := range kinds {
		out, err := e.engine.Check(ctx, kind)
		if err != nil {
			return errReconcile.Fmt(kind).Wrap(err)
		}

		if !quiet {
			report.PrintOutcome(out)
		}

		if out.NeedsConfirmation {
			continue
		}

		_, err = e.tracker(kind).Sync(ctx)
		if err != nil {
			return errReconcile.Fmt(kind).Wrap(err)
		}
	}

	return nil
}

// statusAction reconciles and then prints the running session.
func statusAction(ctx *cli.Context, e *env) error {
	err := e.refresh(ctx.Context, ctx.Bool("json"))
	if err != nil {
		return err
	}

	return printStatus(ctx, e)
}

func printStatus(ctx *cli.Context, e *env) error {
	view := report.NewStatusView(
		e.state.Current(),
		e.state.Validator(),
		e.state.Now(),
	)

	if ctx.Bool("json") {
		return report.JSON(config.Stdout, view)
	}

	return report.Status(config.Stdout, view, e.cfg.Display.TwentyFourHour)
}

func reconcileAction(ctx *cli.Context, e *env) error {
	kinds := models.Kinds

	if k := ctx.String("kind"); k != "" {
		kind := models.Kind(k)
		if !kind.Valid() {
			return errUnknownKind.Fmt(k)
		}

		kinds = []models.Kind{kind}
	}

	for _, kind := range kinds {
		err := e.mount(ctx.Context, kind)
		if err != nil {
			return err
		}
	}

	return printStatus(ctx, e)
}

// watchAction follows changes until interrupted. Every change triggers a
// debounced reconciliation of the running kind.
func watchAction(ctx *cli.Context, e *env) error {
	sigCtx, stop := signal.NotifyContext(
		ctx.Context,
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if addr := ctx.String("metrics-addr"); addr != "" {
		go func() {
			err := serveMetrics(sigCtx, addr)
			if err != nil {
				e.log.Error("serving metrics", slog.Any("error", err))
			}
		}()
	}

	unsubscribe := e.state.Subscribe(func(sess *models.ActiveSession) {
		_ = report.Status(
			config.Stdout,
			report.NewStatusView(sess, e.state.Validator(), e.state.Now()),
			e.cfg.Display.TwentyFourHour,
		)

		if sess != nil {
			go e.follow(sigCtx, sess.Kind)
		}
	})
	defer unsubscribe()

	_ = report.Status(
		config.Stdout,
		report.NewStatusView(e.state.Current(), e.state.Validator(), e.state.Now()),
		e.cfg.Display.TwentyFourHour,
	)

	pterm.Info.Println("Watching for changes, press Ctrl+C to stop")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCtx.Done():
			return nil
		case <-ticker.C:
			if e.studies.Current() == nil {
				continue
			}

			_, err := e.studies.Tick(sigCtx)
			if err != nil {
				e.log.Warn("recording study time", slog.Any("error", err))
			}
		}
	}
}

func (e *env) follow(ctx context.Context, kind models.Kind) {
	res, ok := <-e.engine.Trigger(ctx, kind)
	if !ok {
		return
	}

	if res.Err != nil {
		e.log.Warn("reconciling after a change", slog.Any("error", res.Err))
		return
	}

	report.PrintOutcome(res.Outcome)
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// relayAction runs the websocket relay until interrupted.
func relayAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}

	defer closer.Close()

	sigCtx, stop := signal.NotifyContext(
		ctx.Context,
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	addr := ctx.String("addr")

	pterm.Info.Printfln("Relay listening on ws://%s%s", addr, broadcast.RelayPath)

	return broadcast.NewRelay(log).ListenAndServe(sigCtx, addr)
}

func storageListAction(ctx *cli.Context, e *env) error {
	keys, err := e.base.Keys()
	if err != nil {
		return err
	}

	sizes := make(map[string]int, len(keys))

	for _, k := range keys {
		v, err := e.base.Get(k)
		if err != nil {
			return err
		}

		sizes[k] = len(v)
	}

	if ctx.Bool("json") {
		return report.JSON(config.Stdout, sizes)
	}

	if len(sizes) == 0 {
		pterm.Info.Println("The storage is empty")
		return nil
	}

	return ui.PrintTable(report.StorageRows(sizes), config.Stdout)
}

// editConfigAction handles the edit-config command which opens the lifetrack
// config file in the user's default text editor.
func editConfigAction(_ *cli.Context) error {
	err := pathutil.Initialize()
	if err != nil {
		return err
	}

	defaultEditor := "nano"

	if runtime.GOOS == osutil.Windows {
		defaultEditor = "C:\\Windows\\system32\\notepad.exe"
	}

	editor := firstNonEmptyString(
		os.Getenv("VISUAL"),
		os.Getenv("EDITOR"),
		defaultEditor,
	)

	cmd := exec.Command(editor, pathutil.ConfigFilePath())

	cmd.Stderr = config.Stderr
	cmd.Stdin = config.Stdin
	cmd.Stdout = config.Stdout

	return cmd.Run()
}

func beforeAction(ctx *cli.Context) error {
	cli.AppHelpTemplate = helpText()

	pterm.Error.MessageStyle = pterm.NewStyle(pterm.FgRed)
	pterm.Error.Prefix = pterm.Prefix{
		Text:  "ERROR",
		Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack),
	}

	if _, exists := os.LookupEnv(envNoColor); exists {
		disableStyling()
	}

	if _, exists := os.LookupEnv(envLifetrackNoColor); exists {
		disableStyling()
	}

	if ctx.Bool("no-color") {
		disableStyling()
	}

	return nil
}

func afterAction(ctx *cli.Context) error {
	slog.DebugContext(ctx.Context, "exiting lifetrack")

	return nil
}
