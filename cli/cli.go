package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/santiagomed/scaff/config"
	"github.com/santiagomed/scaff/core"
	"github.com/santiagomed/scaff/fs"
	"github.com/santiagomed/scaff/server"
	"github.com/santiagomed/scaff/tree"
)

var (
	errInterrupted = errors.New("interrupted")
	errNoPrompt    = errors.New("no project description entered")
)

const (
	formatText = "text"
	formatJSON = "json"
	formatZip  = "zip"
)

var rootCmd = &cobra.Command{
	Use:   "scaff",
	Short: "Scaff turns a project description into a directory layout",
	Long: `Scaff asks a language model for the file tree of the project you describe,
reusing cached and template layouts when a close enough match already exists.`,
	SilenceUsage: true,
}

var genCmd = &cobra.Command{
	Use:   "gen [description]",
	Short: "Generate a project structure",
	RunE:  runGen,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the structure API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var templatesCmd = &cobra.Command{
	Use:   "templates [name]",
	Short: "List the example templates or show one of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTemplates,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a config file or the directory holding config.yaml")

	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(templatesCmd)

	addGenFlags(genCmd)
	serveCmd.Flags().String("addr", "", "Listen address")
}

func addGenFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "LLM provider (openai or anthropic)")
	cmd.Flags().StringP("model", "m", "", "Model name")
	cmd.Flags().Float64("threshold", 0, "Similarity threshold for reusing a structure")
	cmd.Flags().Int("retries", 0, "Retry budget for failed model answers")
	cmd.Flags().StringP("prefs", "p", "", `Layout preferences, e.g. "docker, ci, folder: scripts"`)
	cmd.Flags().StringP("format", "f", formatText, "Output format: text, json or zip")
	cmd.Flags().Bool("plain", false, "Skip the progress view")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

// genOverrides collects the flags that were set explicitly.
func genOverrides(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	overrides := &config.Config{}

	var err error
	if overrides.Provider, err = flags.GetString("provider"); err != nil {
		return nil, err
	}
	if overrides.ModelName, err = flags.GetString("model"); err != nil {
		return nil, err
	}
	if overrides.SimilarityThreshold, err = flags.GetFloat64("threshold"); err != nil {
		return nil, err
	}
	if overrides.MaxRetries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if flags.Changed("prefs") {
		prefs, err := flags.GetString("prefs")
		if err != nil {
			return nil, err
		}
		overrides.Preferences = core.ParsePreferences(prefs)
	}
	return overrides, nil
}

func applyGenOverrides(cmd *cobra.Command, cfg *config.Config) error {
	overrides, err := genOverrides(cmd)
	if err != nil {
		return err
	}
	// Merge skips zero values, so flags whose zero is meaningful are copied.
	if cmd.Flags().Changed("retries") {
		cfg.MaxRetries = overrides.MaxRetries
	}
	if cmd.Flags().Changed("threshold") {
		cfg.SimilarityThreshold = overrides.SimilarityThreshold
	}
	if cmd.Flags().Changed("prefs") {
		cfg.Preferences = overrides.Preferences
	}
	return cfg.Merge(overrides)
}

func runGen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyGenOverrides(cmd, cfg); err != nil {
		return err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	switch format {
	case formatText, formatJSON, formatZip:
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	plain, err := cmd.Flags().GetBool("plain")
	if err != nil {
		return err
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && (plain || format == formatZip) {
		return errNoPrompt
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ps *tree.ProjectStructure
	if plain || format == formatZip {
		ps, err = generatePlain(ctx, cfg, prompt)
	} else {
		ps, err = generateInteractive(ctx, cfg, prompt)
	}
	if err != nil {
		return err
	}
	return writeStructure(cmd.OutOrStdout(), ps, format)
}

func generatePlain(ctx context.Context, cfg *config.Config, prompt string) (*tree.ProjectStructure, error) {
	log, closer, err := openLogger(cfg, false)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	a, err := newApp(cfg, log, nil)
	if err != nil {
		return nil, err
	}
	return a.orchestrator.GenerateStructure(ctx, prompt)
}

func generateInteractive(ctx context.Context, cfg *config.Config, prompt string) (*tree.ProjectStructure, error) {
	log, closer, err := openLogger(cfg, false)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	publisher := NewCliStatePublisher(log)
	a, err := newApp(cfg, log, publisher)
	if err != nil {
		return nil, err
	}

	engine := NewEngine(a.orchestrator, a.logger, 1)
	engine.Start(ctx)
	defer engine.Shutdown(5 * time.Second)

	model := newGenerateModel(engine, publisher, a.logger, prompt)
	final, err := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return nil, fmt.Errorf("error running program: %w", err)
	}
	m := final.(generateCmdModel)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func writeStructure(w io.Writer, ps *tree.ProjectStructure, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ps)
	case formatZip:
		return fs.ExportZip(w, ps.Root)
	}
	_, err := fmt.Fprintln(w, renderStructure(ps))
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.ListenAddr = addr
	}

	log, _, err := openLogger(cfg, true)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := server.NewHandler(a.orchestrator, a.logger, a.registry).Init()
	a.logger.Info("Listening on " + cfg.ListenAddr)
	return server.Run(ctx, cfg.ListenAddr, handler)
}

func runTemplates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	set, err := loadTemplates(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		_, err = fmt.Fprint(out, renderTemplates(set))
		return err
	}
	t, ok := set.Get(args[0])
	if !ok {
		return fmt.Errorf("no template named %q", args[0])
	}
	_, err = fmt.Fprintln(out, styledTree(t.Root).String())
	return err
}
