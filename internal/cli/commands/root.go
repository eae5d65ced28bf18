package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/cli/config"
	"github.com/conduit-lang/admin/internal/cli/ui"
	"github.com/conduit-lang/admin/internal/orm/errs"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalFlags are the persistent flags shared by every subcommand
type globalFlags struct {
	configPath string
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Schema-driven admin for your entities",
		Long: color.CyanString(`Admin - schema-driven CRUD administration

Describe entities in admin.yml and get a JSON admin API with listing,
filtering, search, validation, optimistic locking and relationship
navigation over an in-memory store or a SQL database.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"config file (default: admin.yml in the working directory)")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newInspectCommand(flags))
	rootCmd.AddCommand(newCreateCommand(flags, surveyPrompter{}))
	rootCmd.AddCommand(newTokenCommand(flags))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the admin version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				titleColor.DisableColor()
			}
			for _, line := range [][2]string{
				{"Admin version: ", Version},
				{"Git commit: ", GitCommit},
				{"Build date: ", BuildDate},
				{"Go version: ", goVer},
			} {
				titleColor.Fprint(out, line[0])
				fmt.Fprintln(out, line[1])
			}
		},
	}
}

// loadApp loads the configuration and bootstraps the engine. The caller
// must Close the app and Sync its logger.
func loadApp(ctx context.Context, flags *globalFlags) (*App, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	app, err := Bootstrap(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}

func (a *App) shutdown() {
	if err := a.Close(); err != nil {
		a.Logger.Warn("close store", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		reportError(rootCmd, err)
		return err
	}
	return nil
}

func reportError(cmd *cobra.Command, err error) {
	noColor, _ := cmd.PersistentFlags().GetBool("no-color")
	msg := ui.Message{Problem: err.Error(), NoColor: noColor}
	if errors.Is(err, errs.ErrSchema) {
		msg.Context = "invalid schema"
		msg.Hints = []string{"Check the entities section of admin.yml"}
	}
	msg.Write(cmd.ErrOrStderr())
}
