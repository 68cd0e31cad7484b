package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fight5566jay/Explainable-Mortal/internal/batch"
	"github.com/fight5566jay/Explainable-Mortal/internal/logging"
	"github.com/fight5566jay/Explainable-Mortal/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultTemplateName is the mjai review page the logs are spliced into.
const defaultTemplateName = "index.example.html"

var cfgFile string

// rootCmd converts one archive or a directory of archives.
var rootCmd = &cobra.Command{
	Use:   "viewlogs <input>",
	Short: "viewlogs: HTML review pages for mjai logs",
	Long: `viewlogs turns gzip-compressed mjai logs (.json.gz) into standalone HTML
review pages by splicing the log into a template page.

The input is either a single .json.gz file or a directory of them.

The template is the mjai review page (index.example.html) from the viewer
distribution; it is not bundled. Without --template, viewlogs looks for
index.example.html in the working directory, then next to the executable.

Examples:
  viewlogs game.json.gz
  viewlogs ./logs -o ./reports
  viewlogs ./logs --pattern "**/*.json.gz" --limit 20`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGenerate,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.viewlogs.yaml)")
	pf.String("template", defaultTemplatePath(), "mjai review page to splice logs into")
	pf.StringP("output", "o", "", "output directory (default: same as input)")
	pf.String("pattern", batch.DefaultPattern, "file pattern for directory processing")
	pf.String("format", "text", "progress output format: text, json")
	pf.String("log-level", "info", "diagnostic level: debug, info, warn, error")
	pf.String("log-format", "text", "diagnostic format: text, json")
	cobra.CheckErr(viper.BindPFlags(pf))

	rootCmd.Flags().IntP("limit", "l", 0, "keep at most this many generated files in directory mode (0 = no limit)")
	cobra.CheckErr(viper.BindPFlag("limit", rootCmd.Flags().Lookup("limit")))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".viewlogs")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VIEWLOGS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("reading config: %w", err))
		}
	}
}

// defaultTemplatePath looks for index.example.html in the working directory,
// then next to the binary. The working-directory name is returned when
// neither exists so the error names a path the user can create.
func defaultTemplatePath() string {
	if _, err := os.Stat(defaultTemplateName); err == nil {
		return defaultTemplateName
	}
	exe, err := os.Executable()
	if err != nil {
		return defaultTemplateName
	}
	beside := filepath.Join(filepath.Dir(exe), defaultTemplateName)
	if _, err := os.Stat(beside); err == nil {
		return beside
	}
	return defaultTemplateName
}

// settings is the resolved configuration shared by all commands.
type settings struct {
	Template  string
	Output    string
	Pattern   string
	Limit     int
	Format    string
	LogLevel  string
	LogFormat string
}

func loadSettings() (settings, error) {
	s := settings{
		Template:  viper.GetString("template"),
		Output:    viper.GetString("output"),
		Pattern:   viper.GetString("pattern"),
		Limit:     viper.GetInt("limit"),
		Format:    strings.ToLower(viper.GetString("format")),
		LogLevel:  viper.GetString("log-level"),
		LogFormat: viper.GetString("log-format"),
	}
	if s.Limit < 0 {
		return settings{}, fmt.Errorf("--limit must not be negative, got %d", s.Limit)
	}
	return s, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	logger := logging.Setup(s.LogLevel, s.LogFormat, os.Stderr)
	renderer, err := output.New(s.Format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	// Interrupts stop the run between archives.
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coord := batch.New(batch.Options{
		Template:  s.Template,
		OutputDir: s.Output,
		Pattern:   s.Pattern,
		Limit:     s.Limit,
	}, logger, output.Observe(renderer, logger))

	_, err = coord.Process(ctx, args[0])
	return exitError(err)
}

// exitError drops errors that directory mode reports without failing:
// those runs still finish and print their count.
func exitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, batch.ErrUnsafePattern),
		errors.Is(err, batch.ErrBadPattern),
		errors.Is(err, batch.ErrListing),
		errors.Is(err, batch.ErrNoMatchingArchives):
		return nil
	default:
		return err
	}
}
