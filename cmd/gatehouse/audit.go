package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hireloop/gatehouse/pkg/audit"
	"hireloop/gatehouse/pkg/audit/retention"
	auditstorage "hireloop/gatehouse/pkg/audit/storage"
	"hireloop/gatehouse/pkg/config"
)

var auditFlags struct {
	principal  string
	method     string
	status     int
	pathPrefix string
	timeRange  string
	limit      int
	offset     int
	format     string
}

var auditPruneFlags struct {
	days       int
	maxRecords int64
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and maintain the audit trail",
	Long: `Query and maintain the request audit trail.

Subcommands:
  query  - Query audit records with filters
  prune  - Run retention pruning once

Examples:
  # All denials for a principal
  gatehouse audit query --principal alice --status 429

  # A time range, as JSON
  gatehouse audit query --time-range "2026-08-01T00:00:00Z/2026-08-02T00:00:00Z" --format json`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit records",
	Long: `Query audit records with filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-01T00:00:00Z/2026-08-02T00:00:00Z"`,
	RunE: queryAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run retention pruning once",
	Long: `Delete audit records past the retention period and trim the trail to
the record cap. Uses the configured retention settings unless overridden
with flags.`,
	RunE: pruneAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditPruneCmd)

	auditQueryCmd.Flags().StringVar(&auditFlags.principal, "principal", "", "filter by principal ID")
	auditQueryCmd.Flags().StringVar(&auditFlags.method, "method", "", "filter by HTTP method")
	auditQueryCmd.Flags().IntVar(&auditFlags.status, "status", 0, "filter by status code")
	auditQueryCmd.Flags().StringVar(&auditFlags.pathPrefix, "path-prefix", "", "filter by path prefix")
	auditQueryCmd.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 50, "maximum records to return")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "records to skip")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "table", "output format: table, json")

	auditPruneCmd.Flags().IntVar(&auditPruneFlags.days, "days", 0, "override retention days")
	auditPruneCmd.Flags().Int64Var(&auditPruneFlags.maxRecords, "max-records", 0, "override record cap")
}

// openAuditStore opens the configured audit store for CLI access.
func openAuditStore() (audit.Storage, *config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Audit.Backend != "sqlite" {
		return nil, nil, fmt.Errorf("audit CLI requires the sqlite backend, configured backend is %q", cfg.Audit.Backend)
	}

	store, err := auditstorage.NewSQLiteStorage(cfg.Audit.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return store, cfg, nil
}

func queryAudit(cmd *cobra.Command, args []string) error {
	store, _, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	query := &audit.Query{
		PrincipalID: auditFlags.principal,
		Method:      auditFlags.method,
		StatusCode:  auditFlags.status,
		PathPrefix:  auditFlags.pathPrefix,
		Limit:       auditFlags.limit,
		Offset:      auditFlags.offset,
	}

	if auditFlags.timeRange != "" {
		start, end, err := parseTimeRange(auditFlags.timeRange)
		if err != nil {
			return err
		}
		query.StartTime = &start
		query.EndTime = &end
	}

	ctx := cmd.Context()
	records, err := store.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	total, err := store.Count(ctx, query)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}

	switch auditFlags.format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tPRINCIPAL\tMETHOD\tPATH\tSTATUS\tSOURCE")
		for _, r := range records {
			principal := r.PrincipalID
			if principal == "" {
				principal = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				r.Timestamp.Format(time.RFC3339), principal, r.Method, r.Path, r.StatusCode, r.SourceAddr)
		}
		w.Flush()
		fmt.Printf("\n%d of %d records\n", len(records), total)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", auditFlags.format)
	}
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	store, cfg, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	retCfg := &retention.Config{
		RetentionDays: cfg.Audit.Retention.Days,
		MaxRecords:    cfg.Audit.Retention.MaxRecords,
	}
	if auditPruneFlags.days > 0 {
		retCfg.RetentionDays = auditPruneFlags.days
	}
	if auditPruneFlags.maxRecords > 0 {
		retCfg.MaxRecords = auditPruneFlags.maxRecords
	}

	deleted, err := retention.NewPruner(store, retCfg).Prune(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d records\n", deleted)
	return nil
}

// parseTimeRange parses an RFC3339 "start/end" interval.
func parseTimeRange(s string) (time.Time, time.Time, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("time range must be start/end, got %q", s)
	}
	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end time is before start time")
	}
	return start, end, nil
}
