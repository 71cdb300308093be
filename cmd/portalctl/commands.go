package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/eco-portal/internal/app"
	"github.com/yourusername/eco-portal/internal/ckan"
	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/database"
	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/logging"
	"github.com/yourusername/eco-portal/internal/observation"
)

// session はサブコマンド実行中に共有する組み立て済みのコンポーネントです。
type session struct {
	load func() (*config.Config, error)
	out  io.Writer
	app  *app.App
}

func (s *session) open() error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, logging.Setup(cfg.LogLevel))
	if err != nil {
		return err
	}
	s.app = a
	return nil
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	return s.app.Close()
}

func newSession(load func() (*config.Config, error), out io.Writer) *session {
	return &session{load: load, out: out}
}

// newRootCommand はコマンドツリーを作ります。実行後は呼び出し側で s.close() を呼びます。
func newRootCommand(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Eco portal operations CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open()
		},
	}
	root.SetOut(s.out)

	root.AddCommand(
		migrateCommand(s),
		sweepCommand(s),
		rebuildCacheCommand(s),
		exportCommand(s),
		listCommand(s),
		importCommand(s),
	)
	return root
}

func migrateCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update all database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Migrate(s.app.DB); err != nil {
				return err
			}
			fmt.Fprintln(s.out, "migration completed")
			return nil
		},
	}
}

func sweepCommand(s *session) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired download archives and mark their requests expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("days") {
				days = s.app.Config.RetentionDays
			}
			report, err := s.app.Sweeper.Sweep(cmd.Context(), days)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(s.out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "retention period in days (defaults to RETENTION_DAYS)")
	return cmd
}

func rebuildCacheCommand(s *session) *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "rebuild-cache",
		Short: "Rebuild the map filter and location indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if enqueue {
				if err := s.app.Jobs.EnqueueCacheRebuild(ctx); err != nil {
					return err
				}
				fmt.Fprintln(s.out, "cache rebuild enqueued")
				return nil
			}
			if err := s.app.Builder.RebuildFilter(ctx); err != nil {
				return err
			}
			if err := s.app.Builder.RebuildLocations(ctx); err != nil {
				return err
			}
			fmt.Fprintln(s.out, "map cache rebuilt")
			return nil
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "enqueue the rebuild for the workers instead of running it here")
	return cmd
}

func exportCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "export <request-id>",
		Short: "Run the export for a pending or failed request synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			ctx := cmd.Context()
			if err := s.app.Runner.Run(ctx, uint(id)); err != nil {
				return err
			}
			req, err := s.app.Ledger.Get(ctx, uint(id))
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "request %d: %s %s\n", req.ID, req.Status, req.ZipPath)
			return nil
		},
	}
}

func listCommand(s *session) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List download requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ledger.Filter{Status: ledger.Status(status), Limit: limit}
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			rows, err := s.app.Ledger.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tLOCATION\tYEAR\tCREATED\tERROR")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Status, r.LocationID, r.Year, r.CreatedAt.Format(time.RFC3339), r.ErrorMessage)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, done, failed, expired)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	return cmd
}

func importCommand(s *session) *cobra.Command {
	var (
		category     string
		uniqueFields string
		formats      string
		timeout      time.Duration
		opts         ckan.Options
	)
	cmd := &cobra.Command{
		Use:     "import-ckan",
		Aliases: []string{"import-birdnetsound"},
		Short:   "Sync observation rows from a CKAN datastore, upserting by natural key",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := observation.Lookup(category)
			if !ok {
				return fmt.Errorf("unknown category %q", category)
			}
			opts.UniqueFields = splitList(uniqueFields)
			opts.Formats = splitList(formats)

			client := ckan.NewClient(s.app.Config.CKANBaseURL, &http.Client{Timeout: timeout}, s.app.Logger)
			importer, err := ckan.NewImporter(client, s.app.Observations, c, s.app.Logger)
			if err != nil {
				return err
			}
			report, err := importer.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(s.out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", observation.CodeBirdnetSound, "observation category to import into")
	f.StringVar(&opts.PackageID, "package-id", "", "CKAN package id; every matching resource is synced")
	f.StringVar(&opts.ResourceID, "resource-id", "", "single datastore resource id (skips package_show)")
	f.StringVar(&uniqueFields, "unique-fields", "", "comma separated natural key columns, e.g. eventID,dataID")
	f.IntVar(&opts.Limit, "limit", ckan.DefaultLimit, "records per datastore_search batch")
	f.IntVar(&opts.MaxRecords, "max-records", 0, "stop each resource after this many records (0 = all)")
	f.StringVar(&formats, "formats", "", "only sync resources of these formats, comma separated (e.g. CSV,JSON)")
	f.BoolVar(&opts.IncludeNonDatastore, "include-non-datastore", false, "include resources that are not datastore_active")
	f.BoolVar(&opts.DryRun, "dry-run", false, "count inserts and updates without writing")
	f.DurationVar(&timeout, "timeout", 120*time.Second, "HTTP timeout per request")
	cmd.MarkFlagsMutuallyExclusive("package-id", "resource-id")
	cmd.MarkFlagsOneRequired("package-id", "resource-id")
	_ = cmd.MarkFlagRequired("unique-fields")
	return cmd
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
