package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/denizumutdereli/npsrisk/pkg/api"
	"github.com/denizumutdereli/npsrisk/pkg/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cliOverrides core.CLIOverrides
		envFile      string
		cfg          *core.Config
	)

	rootCmd := &cobra.Command{
		Use:   "npsrisk",
		Short: "npsrisk - reputational risk triage for NPS comments",
		Long: "Grades customer NPS comments (Portuguese) as Muito Alto, Alto, Médio or Baixo risk with a short explanation,\n" +
			"using a weighted lexicon heuristic and an optional LLM classifier.",
		Version: core.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd.Flags(), envFile, &cliOverrides)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		SilenceUsage: true,
	}

	// CLI flags - highest priority in the config hierarchy.
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading NPSRISK_* variables (missing file is ignored)")
	cliOverrides.ConfigPath = pf.StringP("config", "f", "", "Path to YAML config file (overrides NPSRISK_CONFIG env)")
	cliOverrides.LexiconPath = pf.String("lexicon", "", "Path to a YAML lexicon replacing the embedded pt-BR one")
	cliOverrides.Overlap = pf.String("overlap", "", "Overlapping term policy: longest|all")
	cliOverrides.Provider = pf.String("provider", "", "External classifier: none|openai|gemini")
	cliOverrides.Model = pf.String("model", "", "External classifier model")
	cliOverrides.APIKey = pf.String("api-key", "", "External classifier API key")
	cliOverrides.BaseURL = pf.String("base-url", "", "External classifier base URL (OpenAI-compatible endpoints)")
	cliOverrides.ClassifierTimeout = pf.Duration("classifier-timeout", 0, "External classifier call timeout")

	rootCmd.AddCommand(
		newServeCmd(&cliOverrides, func() *core.Config { return cfg }),
		newAnalyzeCmd(func() *core.Config { return cfg }),
		newBatchCmd(&cliOverrides, func() *core.Config { return cfg }),
		newLexiconCmd(func() *core.Config { return cfg }),
	)
	return rootCmd
}

// loadConfig resolves defaults -> YAML -> env vars -> explicit CLI flags and
// validates the result.
func loadConfig(flags *pflag.FlagSet, envFile string, cliOverrides *core.CLIOverrides) (*core.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("⚠ could not load %s: %v", envFile, err)
		}
	}

	// Resolve config path: --config flag > NPSRISK_CONFIG env var
	configPath := ""
	if cliOverrides.ConfigPath != nil && *cliOverrides.ConfigPath != "" {
		configPath = *cliOverrides.ConfigPath
	} else {
		configPath = os.Getenv("NPSRISK_CONFIG")
	}

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI flag overrides (only flags that were explicitly set)
	applyExplicitFlags(flags, cfg, cliOverrides)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newServeCmd(o *core.CLIOverrides, config func() *core.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and MCP endpoint when enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(config())
		},
	}

	f := cmd.Flags()
	o.HTTPAddr = f.String("http-addr", "", "HTTP listen address")
	o.AllowedOrigins = f.String("allowed-origins", "", "CORS allowed origins (comma-separated, \"*\" for all)")
	o.MaxRequestBody = f.Int64("max-request-body", 0, "Maximum request body size in bytes")
	o.TLSCert = f.String("tls-cert", "", "Path to TLS certificate file")
	o.TLSKey = f.String("tls-key", "", "Path to TLS private key file")
	o.MCPEnabled = f.Bool("mcp", false, "Enable the MCP endpoint")
	o.MCPAPIKey = f.String("mcp-api-key", "", "API key required by the MCP endpoint")
	o.MetricsEnabled = f.Bool("metrics", true, "Expose Prometheus metrics")
	return cmd
}

// runServe implements the server startup sequence after CLI flags are parsed.
func runServe(cfg *core.Config) error {
	core.PrintBanner()
	log.Printf("HTTP: %s", cfg.Server.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	httpServer := api.NewServer(cfg, a.analyzer, a.processor, a.collector)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			errCh <- err
			cancel()
		}
	}()

	log.Println("npsrisk is ready!")
	log.Println("--------------------------------------------")

	// Wait for shutdown signal
	core.WaitForShutdown(ctx, cancel)

	log.Println("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	log.Println("npsrisk shutdown complete")

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// applyExplicitFlags applies only the CLI flags that were explicitly set
// by the user on the command line. Unset flags are ignored so they do not
// override values resolved from YAML or environment variables.
func applyExplicitFlags(flags *pflag.FlagSet, cfg *core.Config, o *core.CLIOverrides) {
	overrides := core.CLIOverrides{}

	set := map[string]func(){
		"lexicon":            func() { overrides.LexiconPath = o.LexiconPath },
		"overlap":            func() { overrides.Overlap = o.Overlap },
		"provider":           func() { overrides.Provider = o.Provider },
		"model":              func() { overrides.Model = o.Model },
		"api-key":            func() { overrides.APIKey = o.APIKey },
		"base-url":           func() { overrides.BaseURL = o.BaseURL },
		"classifier-timeout": func() { overrides.ClassifierTimeout = o.ClassifierTimeout },
		"http-addr":          func() { overrides.HTTPAddr = o.HTTPAddr },
		"allowed-origins":    func() { overrides.AllowedOrigins = o.AllowedOrigins },
		"max-request-body":   func() { overrides.MaxRequestBody = o.MaxRequestBody },
		"tls-cert":           func() { overrides.TLSCert = o.TLSCert },
		"tls-key":            func() { overrides.TLSKey = o.TLSKey },
		"mcp":                func() { overrides.MCPEnabled = o.MCPEnabled },
		"mcp-api-key":        func() { overrides.MCPAPIKey = o.MCPAPIKey },
		"metrics":            func() { overrides.MetricsEnabled = o.MetricsEnabled },
		"workers":            func() { overrides.Workers = o.Workers },
		"max-rows":           func() { overrides.MaxRows = o.MaxRows },
		"header-row":         func() { overrides.HeaderRow = o.HeaderRow },
		"delimiter":          func() { overrides.Delimiter = o.Delimiter },
		"description-column": func() { overrides.DescriptionColumn = o.DescriptionColumn },
		"comment-column":     func() { overrides.CommentColumn = o.CommentColumn },
		"grade-column":       func() { overrides.GradeColumn = o.GradeColumn },
		"explanation-column": func() { overrides.ExplanationColumn = o.ExplanationColumn },
		"strip-markup":       func() { overrides.StripMarkup = o.StripMarkup },
	}
	for name, apply := range set {
		if flags.Changed(name) {
			apply()
		}
	}

	cfg.ApplyCLIOverrides(&overrides)
}
