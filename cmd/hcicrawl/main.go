package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/internal/pipeline"
	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/registry"
	"github.com/kennyhitachi/hci-connectors/pkg/logger"
	"github.com/kennyhitachi/hci-connectors/pkg/observability"

	// Register connectors
	_ "github.com/kennyhitachi/hci-connectors/pkg/connector/destinations/hcp"
	_ "github.com/kennyhitachi/hci-connectors/pkg/connector/destinations/jsonl"
	_ "github.com/kennyhitachi/hci-connectors/pkg/connector/sources/cifs"
	_ "github.com/kennyhitachi/hci-connectors/pkg/connector/sources/solr"
	_ "github.com/kennyhitachi/hci-connectors/pkg/connector/sources/sqldb"
)

var version = "0.1.0"

// envPrefix prefixes environment overrides of config file keys.
const envPrefix = "HCI"

type globalFlags struct {
	logLevel string
	trace    bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	var shutdownTracing func(context.Context) error

	root := &cobra.Command{
		Use:   "hcicrawl",
		Short: "Crawl SQL tables, SMB shares and Solr indexes",
		Long: `hcicrawl walks an external source page by page and hands every record,
with its metadata and optionally its content, to a destination.
Connector configuration files are YAML; any key can be overridden from the
environment with the HCI_ prefix (e.g. HCI_PROPERTIES_BATCH_SIZE).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.Config{Level: flags.logLevel, Encoding: "console"}); err != nil {
				return err
			}
			if flags.trace {
				shutdown, err := observability.InitTracing(observability.TracingConfig{
					ServiceName:    "hcicrawl",
					ServiceVersion: version,
					Writer:         cmd.ErrOrStderr(),
				})
				if err != nil {
					return fmt.Errorf("failed to initialize tracing: %w", err)
				}
				shutdownTracing = shutdown
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			_ = logger.Sync()
			if shutdownTracing != nil {
				return shutdownTracing(cmd.Context())
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.trace, "trace", false, "Export trace spans as JSON to stderr")

	root.AddCommand(
		newVersionCommand(),
		newListCommand(),
		newValidateCommand(),
		newCrawlCommand(),
		newGetCommand(),
		newInitCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hcicrawl v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, info := range registry.ListConnectorInfo() {
				fmt.Fprintf(out, "%-12s %-6s %s\n", info.Type, info.Name, info.Description)
				if req := info.RequiredProperties(); len(req) > 0 {
					fmt.Fprintf(out, "%12s required: %s\n", "", strings.Join(req, ", "))
				}
			}
		},
	}
}

func newValidateCommand() *cobra.Command {
	var sourceFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Open and close a source session to check its configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := openSource(ctx, sourceFile)
			if err != nil {
				return err
			}
			root, err := src.Root(ctx)
			closeErr := src.Close(ctx)
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s)\n", root.DisplayName, src.Name())
			return nil
		},
	}
	cmd.Flags().StringVarP(&sourceFile, "source", "s", "", "Path to source configuration YAML file (required)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newCrawlCommand() *cobra.Command {
	var (
		sourceFile, destFile string
		opts                 pipeline.Options
		noContent            bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a source into a destination",
		Long: `Crawl a source depth-first from its root. Without --destination, or with
--dry-run, records are only listed and counted.

Example:
  hcicrawl crawl --source share.yaml --destination out.yaml --max-depth 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.FetchContent = !noContent
			stats, err := runCrawl(cmd.Context(), sourceFile, destFile, opts)
			if stats != nil {
				if encErr := writeJSON(cmd.OutOrStdout(), stats); encErr != nil && err == nil {
					err = encErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&sourceFile, "source", "s", "", "Path to source configuration YAML file (required)")
	cmd.Flags().StringVarP(&destFile, "destination", "d", "", "Path to destination configuration YAML file")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "Container levels to descend below the root (0 = unlimited)")
	cmd.Flags().BoolVar(&noContent, "no-content", false, "Do not fetch record content")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List records without writing them")
	cmd.Flags().DurationVar(&opts.ProgressInterval, "progress-interval", 30*time.Second, "Interval between progress log lines (0 disables)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newGetCommand() *cobra.Command {
	var sourceFile, uri string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Resolve one record by URI and print its metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := openSource(ctx, sourceFile)
			if err != nil {
				return err
			}
			defer src.Close(ctx)

			rec, err := src.Get(ctx, uri)
			if err != nil {
				return err
			}
			doc := rec.Document()
			if rec.HasContent {
				n, err := contentSize(ctx, src, rec.URI)
				if err != nil {
					return err
				}
				doc["content_bytes"] = n
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVarP(&sourceFile, "source", "s", "", "Path to source configuration YAML file (required)")
	cmd.Flags().StringVar(&uri, "uri", "", "Record URI, e.g. cifs:///docs/a.txt (required)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("uri")
	return cmd
}

func newInitCommand() *cobra.Command {
	var connectorType, name, out string
	cmd := &cobra.Command{
		Use:   "init <connector>",
		Short: "Write a configuration template for a connector",
		Long: `Write a YAML configuration for a registered connector with every schema
property present: defaults filled in, required values and credentials left
empty.

Example:
  hcicrawl init cifs --out share.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := registry.GetConnectorInfo(connectorType, args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = info.Name
			}
			cfg := configTemplate(name, info)
			if err := config.Save(out, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&connectorType, "type", "source", "Connector kind: source or destination")
	cmd.Flags().StringVar(&name, "name", "", "Configuration name (defaults to the connector name)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Path of the YAML file to write (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// configTemplate fills a BaseConfig from a connector schema. Secret
// properties go to the credentials section.
func configTemplate(name string, info *registry.ConnectorInfo) *config.BaseConfig {
	cfg := config.NewBaseConfig(name, info.Name)
	for key, raw := range info.ConfigSchema {
		prop, _ := raw.(map[string]interface{})
		if secret, _ := prop["secret"].(bool); secret {
			cfg.Security.Credentials[key] = ""
			continue
		}
		cfg.Properties[key] = templateValue(prop["default"])
	}
	return cfg
}

func templateValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(v, ",")
	default:
		return fmt.Sprint(v)
	}
}

func runCrawl(ctx context.Context, sourceFile, destFile string, opts pipeline.Options) (*pipeline.Stats, error) {
	ctx = context.WithValue(ctx, logger.CrawlIDKey, uuid.NewString())
	log := logger.WithContext(ctx).With(zap.String("component", "hcicrawl"))

	src, err := openSource(ctx, sourceFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(ctx); err != nil {
			log.Warn("failed to close source", zap.Error(err))
		}
	}()

	var dst core.Destination
	if destFile != "" && !opts.DryRun {
		dst, err = openDestination(ctx, destFile)
		if err != nil {
			return nil, err
		}
	}

	stats, err := pipeline.NewCrawlPipeline(src, dst, opts, log).Run(ctx)
	if dst != nil {
		if closeErr := dst.Close(ctx); closeErr != nil {
			if err == nil {
				return stats, closeErr
			}
			log.Warn("failed to close destination", zap.Error(closeErr))
		}
	}
	return stats, err
}

func openSource(ctx context.Context, file string) (core.Source, error) {
	cfg, err := config.LoadViper(file, envPrefix)
	if err != nil {
		return nil, fmt.Errorf("source configuration error: %w", err)
	}
	src, err := registry.CreateSource(cfg.Type, cfg)
	if err != nil {
		return nil, err
	}
	if err := src.Initialize(ctx, cfg); err != nil {
		return nil, err
	}
	return src, nil
}

func openDestination(ctx context.Context, file string) (core.Destination, error) {
	cfg, err := config.LoadViper(file, envPrefix)
	if err != nil {
		return nil, fmt.Errorf("destination configuration error: %w", err)
	}
	dst, err := registry.CreateDestination(cfg.Type, cfg)
	if err != nil {
		return nil, err
	}
	if err := dst.Initialize(ctx, cfg); err != nil {
		return nil, err
	}
	return dst, nil
}

func contentSize(ctx context.Context, src core.Source, uri string) (int64, error) {
	rc, err := src.Open(ctx, uri)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(io.Discard, rc)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
