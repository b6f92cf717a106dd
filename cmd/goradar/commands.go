package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/goradar/internal/app"
	"github.com/hyperifyio/goradar/internal/export"
	"github.com/hyperifyio/goradar/internal/job"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/scraper"
)

// parseConfig builds a job config from a JSON object and key=value pairs.
// Integers, booleans and JSON arrays or objects keep their type;
// course_codes splits on commas; anything else is a string.
func parseConfig(params string, sets []string) (scraper.Config, error) {
	cfg := scraper.Config{}
	if strings.TrimSpace(params) != "" {
		if err := json.Unmarshal([]byte(params), &cfg); err != nil {
			return nil, fmt.Errorf("%w: --params: %v", errUsage, err)
		}
	}
	for _, kv := range sets {
		key, val, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --set %q: want key=value", errUsage, kv)
		}
		cfg[key] = parseValue(key, strings.TrimSpace(val))
	}
	return cfg, nil
}

func parseValue(key, val string) any {
	if key == scraper.KeyCourseCodes && !strings.HasPrefix(val, "[") {
		return scraper.Config{key: val}.Strings(key)
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	switch val {
	case "true":
		return true
	case "false":
		return false
	}
	if strings.HasPrefix(val, "[") || strings.HasPrefix(val, "{") {
		var v any
		if err := json.Unmarshal([]byte(val), &v); err == nil {
			return v
		}
	}
	return val
}

func parseKind(s string) (record.Kind, error) {
	k, err := record.ParseKind(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	return k, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jobError reports a job that did not complete as an error so the exit code
// reflects it.
func jobError(j job.Job) error {
	switch j.Status {
	case job.StatusCompleted:
		return nil
	case job.StatusCancelled:
		return fmt.Errorf("job %s cancelled with %d records", j.ID, j.ResultsCount)
	default:
		return fmt.Errorf("job %s %s: %s", j.ID, j.Status, j.Error)
	}
}

func newRunCmd(opts *options) *cobra.Command {
	var (
		kind    string
		sets    []string
		params  string
		deliver bool
		output  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one extraction job and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if kind == "" {
				return fmt.Errorf("%w: --kind is required", errUsage)
			}
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			cfg, err := parseConfig(params, sets)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				j, err := a.Runner().Execute(ctx, job.Request{Kind: k, Config: cfg, Deliver: deliver})
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), j); err != nil {
					return err
				}
				if output != "" {
					if err := writeResults(context.WithoutCancel(ctx), a, j, output); err != nil {
						return err
					}
				}
				return jobError(j)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&kind, "kind", "k", "", "Data kind: "+kindNames())
	f.StringArrayVar(&sets, "set", nil, "Job config key=value (repeatable)")
	f.StringVar(&params, "params", "", "Job config as a JSON object")
	f.BoolVar(&deliver, "deliver", false, "Deliver records to the backend sink on completion")
	f.StringVarP(&output, "output", "o", "", "Also write the job's records as JSON to this file")
	return cmd
}

func writeResults(ctx context.Context, a *app.App, j job.Job, path string) error {
	recs, err := a.Runner().Results(ctx, j.ID)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.JSON(f, recs); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("records", len(recs)).Msg("results written")
	return nil
}

func kindNames() string {
	names := make([]string, 0, len(record.Kinds))
	for _, k := range record.Kinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func newBatchCmd(opts *options) *cobra.Command {
	var (
		kinds       []string
		concurrency int
		deliver     bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run several jobs with bounded concurrency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(kinds) == 0 {
				return fmt.Errorf("%w: --kinds is required", errUsage)
			}
			reqs := make([]job.Request, 0, len(kinds))
			for _, s := range kinds {
				k, err := parseKind(s)
				if err != nil {
					return err
				}
				reqs = append(reqs, job.Request{Kind: k, Deliver: deliver})
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				jobs, err := a.Runner().RunBatch(ctx, reqs, concurrency)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), jobs); err != nil {
					return err
				}
				failed := 0
				for _, j := range jobs {
					if j.Status != job.StatusCompleted {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d jobs did not complete", failed, len(jobs))
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&kinds, "kinds", nil, "Comma separated kinds")
	f.IntVar(&concurrency, "batch-concurrency", 0, "Concurrent jobs for this batch (1-5); defaults to --max-concurrent")
	f.BoolVar(&deliver, "deliver", false, "Deliver records of completed jobs")
	return cmd
}

func newPipelineCmd(opts *options) *cobra.Command {
	var (
		mode    string
		sets    []string
		deliver bool
	)
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Collect courses, then their components and structures",
		Long: "Collect courses, then components and structures for the collected course codes.\n" +
			"Stage config is given as --set <kind>.<key>=<value>, e.g. --set courses.max_pages=3.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configs := make(map[record.Kind]scraper.Config)
			for _, kv := range sets {
				stage, rest, ok := strings.Cut(kv, ".")
				if !ok {
					return fmt.Errorf("%w: --set %q: want kind.key=value", errUsage, kv)
				}
				k, err := parseKind(stage)
				if err != nil {
					return err
				}
				cfg, err := parseConfig("", []string{rest})
				if err != nil {
					return err
				}
				if configs[k] == nil {
					configs[k] = scraper.Config{}
				}
				for key, v := range cfg {
					configs[k][key] = v
				}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Runner().Pipeline(ctx, job.PipelineRequest{Mode: job.Mode(mode), Configs: configs, Deliver: deliver})
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
				if err != nil {
					return err
				}
				for _, j := range res.Jobs {
					if err := jobError(j); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&mode, "mode", string(job.ModeSequential), "sequential or partial-parallel")
	f.StringArrayVar(&sets, "set", nil, "Stage config kind.key=value (repeatable)")
	f.BoolVar(&deliver, "deliver", false, "Deliver all collected records at the end")
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP job API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
}

func newJobsCmd(opts *options) *cobra.Command {
	var (
		status string
		kind   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List jobs, newest first, or show one job",
		Long:  "List jobs from the job store. Use --redis-addr to see jobs of a running server.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := job.Filter{Limit: limit}
			if status != "" {
				st, err := job.ParseStatus(status)
				if err != nil {
					return fmt.Errorf("%w: %v", errUsage, err)
				}
				f.Status = st
			}
			if kind != "" {
				k, err := parseKind(kind)
				if err != nil {
					return err
				}
				f.Kind = k
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					j, err := a.Runner().Get(ctx, args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), j)
				}
				jobs, err := a.Runner().List(ctx, f)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), jobs)
				}
				return printJobs(cmd.OutOrStdout(), jobs)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&status, "status", "", "Filter by status")
	fl.StringVar(&kind, "kind", "", "Filter by kind")
	fl.IntVar(&limit, "limit", 20, "Maximum jobs listed; 0 lists all")
	fl.BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printJobs(w io.Writer, jobs []job.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tPROGRESS\tRECORDS\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%d\t%s\n",
			j.ID, j.Kind, j.Status, j.Progress, j.ResultsCount, j.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func newExportCmd(opts *options) *cobra.Command {
	var (
		format string
		kind   string
		output string
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored records as xlsx or json, or a job summary as pdf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			var k record.Kind
			if kind != "" {
				var err error
				if k, err = parseKind(kind); err != nil {
					return err
				}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if output == "-" {
					return a.Export(ctx, format, k, cmd.OutOrStdout())
				}
				path := output
				if path == "" {
					path = app.DefaultExportPath(dir, format, k, time.Now())
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := a.Export(ctx, format, k, f); err != nil {
					_ = f.Close()
					_ = os.Remove(path)
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", export.FormatXLSX, "xlsx, json or pdf")
	f.StringVar(&kind, "kind", "", "Only this kind")
	f.StringVarP(&output, "output", "o", "", "Output file; - writes to stdout")
	f.StringVar(&dir, "dir", "exports", "Directory for the default output file")
	return cmd
}

func newExtractorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extractors",
		Short: "List extractor units and their config schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), scraper.Catalog())
		},
	}
}
