package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/brizzai/desktop-auth/internal/auth"
	"github.com/brizzai/desktop-auth/internal/auth/providers"
	"github.com/brizzai/desktop-auth/internal/auth/state"
	"github.com/brizzai/desktop-auth/internal/backend"
	"github.com/brizzai/desktop-auth/internal/browser"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/identity"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/relay"
	"github.com/brizzai/desktop-auth/internal/requester"
	"github.com/brizzai/desktop-auth/internal/session"
)

func main() {
	Execute()
}

var cfg *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "desktop-auth",
	Short: "Sign in to the desktop app account from the terminal",
	Long: `desktop-auth signs the desktop app into its account, either through Google
in the system browser or with an email and password, and keeps the session
across restarts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}

		loaded, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		if err := logger.InitLogger(&loaded.Logging); err != nil {
			return err
		}
		cfg = loaded
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	}
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(loginCmd(), signupCmd(), logoutCmd(), statusCmd(), refreshCmd(), doctorCmd())
}

// cliApp is the started dependency graph for one command.
type cliApp struct {
	app     *fx.App
	service *auth.Service
	linker  *backend.Linker
}

func newCLIApp(ctx context.Context) (*cliApp, error) {
	rt := &cliApp{}
	rt.app = fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.GetLogger().WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		config.Module,
		requester.Module,
		state.Module,
		providers.Module,
		relay.Module,
		backend.Module,
		identity.Module,
		browser.Module,
		session.Module,
		auth.Module,
		fx.Populate(&rt.service, &rt.linker),
	)
	if err := rt.app.Err(); err != nil {
		return nil, err
	}
	if err := rt.app.Start(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

// restore brings back the stored session before the command runs.
func (rt *cliApp) restore(ctx context.Context) *session.Session {
	sess, err := rt.service.Restore(ctx)
	if err != nil {
		logger.Warn("Session restore failed", zap.Error(err))
		return nil
	}
	return sess
}

func (rt *cliApp) stop() {
	if err := rt.app.Stop(context.Background()); err != nil {
		logger.Warn("Failed to stop cleanly", zap.Error(err))
	}
}

// withApp starts the graph, restores the session and runs fn. SIGINT and
// SIGTERM cancel ctx.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, rt *cliApp, current *session.Session) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newCLIApp(ctx)
	if err != nil {
		return err
	}
	defer rt.stop()

	return fn(ctx, rt, rt.restore(ctx))
}
