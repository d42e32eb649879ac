package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/williampepple1/speedscraper/internal/browser"
	"github.com/williampepple1/speedscraper/internal/config"
	"github.com/williampepple1/speedscraper/internal/engine"
	"github.com/williampepple1/speedscraper/internal/observability"
	"github.com/williampepple1/speedscraper/internal/page"
	"github.com/williampepple1/speedscraper/internal/proxy"
	"github.com/williampepple1/speedscraper/internal/report"
	"github.com/williampepple1/speedscraper/internal/site"
)

// launcher returns the opener for the browser session of one run
type launcher func(cfg config.BrowserConfig, proxyServer string, logger *zap.Logger) page.Opener

func chromeLauncher(cfg config.BrowserConfig, proxyServer string, logger *zap.Logger) page.Opener {
	return func(ctx context.Context) (page.Session, error) {
		s, err := browser.Launch(ctx, cfg, proxyServer, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	launch launcher

	configFile string
	format     string
	providers  []string
	headed     bool
	pause      bool
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		launch: chromeLauncher,
	}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "speedscraper",
		Short:         "Run the speed tests of several providers in a headless browser",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.run,
	}
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default is ./speedscraper.yaml)")
	cmd.Flags().StringVarP(&a.format, "format", "f", "", "output format: "+strings.Join(config.OutputFormats, ", "))
	cmd.Flags().StringSliceVar(&a.providers, "providers", nil, "providers to run, in order (default: "+strings.Join(site.Names(), ",")+")")
	cmd.Flags().BoolVar(&a.headed, "headed", false, "show the browser window")
	cmd.Flags().BoolVar(&a.pause, "pause", false, "wait for Enter before exiting")

	cmd.AddCommand(a.providersCmd(), a.configCmd())
	return cmd
}

// loadConfig reads the config file and applies command line overrides
func (a *app) loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = a.format
	}
	if flags.Changed("providers") {
		cfg.Providers = a.providers
	}
	if flags.Changed("headed") {
		cfg.Browser.Headless = !a.headed
	}
	if flags.Changed("pause") {
		cfg.Run.Pause = a.pause
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) run(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(a.stderr, "error:", err)
		return err
	}

	logger := observability.New(cfg.Logger, zapcore.AddSync(a.stderr))
	defer observability.Sync(logger)

	runErr := a.measure(cmd.Context(), cfg, logger)

	if cfg.Run.Pause {
		fmt.Fprint(a.stderr, "Press Enter to exit...")
		_, _ = bufio.NewReader(a.stdin).ReadString('\n')
	}
	return runErr
}

func (a *app) measure(parent context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	adapters, err := site.Select(cfg.Providers)
	if err != nil {
		logger.Error("Invalid provider selection.", zap.Error(err))
		return err
	}

	proxyServer, err := proxy.NewManager(&cfg.Proxies, rand.New(rand.NewSource(time.Now().UnixNano()))).Server()
	if err != nil {
		logger.Error("Invalid proxy configuration.", zap.Error(err))
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := logger.Named("progress")
	eng := engine.New(
		a.launch(cfg.Browser, proxyServer, logger.Named("browser")),
		adapters,
		engine.WithPoller(page.NewPoller(cfg.Run.PollInterval, cfg.Run.WaitDeadline)),
		engine.WithLogger(logger.Named("engine")),
		engine.WithObserver(func(provider string, state engine.State) {
			progress.Info(provider + ": " + state.String() + ".")
		}),
	)

	logger.Info("Starting speed tests.", zap.Strings("providers", site.NamesOf(adapters)))
	results, runErr := eng.Run(ctx)

	if runErr == nil || len(results) > 0 {
		if err := report.NewPresenter(a.stdout, cfg.Output.Format, cfg.Output.Color).Render(results); err != nil {
			logger.Error("Failed to render results.", zap.Error(err))
			if runErr == nil {
				return err
			}
		}
	}

	if runErr != nil {
		logger.Error("Speed test run aborted.",
			zap.Error(runErr),
			zap.Int("completed", len(results)),
			zap.Int("total", len(adapters)))
		return runErr
	}
	return nil
}

func (a *app) providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the supported providers in run order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, ad := range site.Builtin() {
				trigger := ad.TriggerSelector()
				if trigger == "" {
					trigger = "-"
				}
				fmt.Fprintf(a.stdout, "%-14s %-34s trigger=%s\n", ad.Name(), ad.TargetURL(), trigger)
			}
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				fmt.Fprintln(a.stderr, "error:", err)
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}
