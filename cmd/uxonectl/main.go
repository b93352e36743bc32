package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/dispatcher"
	"github.com/garyjia/uxone/internal/application/service"
	"github.com/garyjia/uxone/internal/config"
	"github.com/garyjia/uxone/internal/container"
	"github.com/garyjia/uxone/internal/domain/entity"
	httpInterface "github.com/garyjia/uxone/internal/interfaces/http"
	"github.com/garyjia/uxone/pkg/database"
	"github.com/garyjia/uxone/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "uxonectl",
	Short: "UXOne approval workflow CLI",
	Long: `uxonectl operates the UXOne approval database directly.
- Identifiers: PREFIX-BUCKET-NNN, unique per family and bucket (day or year); gaps are allowed.
- Aggregates: projects and demands that need a decision from every required department.
- Decisions: APPROVED or REJECTED per department; the last one wins until all approve and the
  aggregate is released, after which it can no longer change.`,
	SilenceUsage: true,
}

func main() {
	_ = gotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("UXONECTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "configs/config.yaml", "configuration file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "log to stderr")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(nextIDCmd())
	rootCmd.AddCommand(familiesCmd())
	rootCmd.AddCommand(countersCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(tokenCmd())
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.New(database.Config{Path: cfg.Database.Path}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator := database.NewMigrator(db, logger)
			pending, err := migrator.Pending()
			if err != nil {
				return err
			}
			if err := migrator.RunMigrations(); err != nil {
				return err
			}

			if viper.GetBool("json") {
				return printJSON(pending)
			}
			if len(pending) == 0 {
				fmt.Println("schema is up to date")
				return nil
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Version", "Migration"})
			for _, m := range pending {
				tw.AppendRow(table.Row{m.Version, m.Name})
			}
			tw.Render()
			return nil
		},
	}
}

func nextIDCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "next-id <family>",
		Short: "Allocate identifiers from a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *container.ServiceBundle, _ *container.RepositoryBundle) error {
				ids := make([]string, 0, count)
				for i := 0; i < count; i++ {
					id, err := s.Sequence.NextIdentifier(ctx, args[0])
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				if viper.GetBool("json") {
					return printJSON(ids)
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of identifiers to allocate")
	return cmd
}

func familiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List identifier families and the next value of each",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, s *container.ServiceBundle, _ *container.RepositoryBundle) error {
				families := s.Sequence.Families()
				if viper.GetBool("json") {
					return printJSON(families)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Family", "Prefix", "Period", "Width", "Next"})
				for _, f := range families {
					next, err := s.Sequence.Preview(ctx, f.Name)
					if err != nil {
						next = "error: " + err.Error()
					}
					tw.AppendRow(table.Row{f.Name, f.Prefix, f.Period, f.Width, next})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func countersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "counters <family>",
		Short: "Show the stored counter buckets of a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, _ *container.ServiceBundle, repos *container.RepositoryBundle) error {
				counters, err := repos.Sequence.ListByFamily(ctx, strings.ToLower(args[0]), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counters)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Bucket", "Counter", "Updated"})
				for _, c := range counters {
					tw.AppendRow(table.Row{c.BucketKey, c.Counter, c.UpdatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of buckets to show")
	return cmd
}

func listCmd() *cobra.Command {
	var kind, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects and demands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, s *container.ServiceBundle, _ *container.RepositoryBundle) error {
				filter := entity.AggregateFilter{Limit: limit}
				if kind != "" {
					k, err := entity.ParseKind(kind)
					if err != nil {
						return err
					}
					filter.Kind = k
				}
				if status != "" {
					filter.Status = entity.AggregateStatus(strings.ToUpper(status))
				}
				items, err := s.Approval.ListAggregates(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Code", "Kind", "Title", "Owner", "Status", "Released"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Code, a.Kind, a.Title, a.OwnerID, a.Status, yesNo(a.Released)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "project or demand")
	cmd.Flags().StringVar(&status, "status", "", "PENDING, APPROVED or REJECTED")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|code>",
		Short: "Show an aggregate with its department statuses and approval log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, s *container.ServiceBundle, _ *container.RepositoryBundle) error {
				agg, err := lookupAggregate(ctx, s, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agg)
				}
				printAggregate(agg)
				return nil
			})
		},
	}
}

func decideCmd() *cobra.Command {
	var department, action, comment, actor, actorDepartment, role string
	cmd := &cobra.Command{
		Use:   "decide <id|code>",
		Short: "Record a department decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := entity.ParseRole(role)
			if err != nil {
				return err
			}
			a := entity.Actor{UserID: actor, Role: r}
			if actorDepartment != "" {
				d, err := entity.ParseDepartment(actorDepartment)
				if err != nil {
					return err
				}
				a.Department = d
			}

			return withServices(cmd.Context(), func(ctx context.Context, s *container.ServiceBundle, _ *container.RepositoryBundle) error {
				agg, err := lookupAggregate(ctx, s, args[0])
				if err != nil {
					return err
				}
				updated, err := s.Approval.RecordDecision(ctx, service.RecordDecisionCommand{
					AggregateID: agg.ID,
					Department:  department,
					Action:      action,
					Comment:     comment,
					Actor:       a,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(updated)
				}
				printAggregate(updated)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department the decision is for")
	cmd.Flags().StringVar(&action, "action", "", "approve or reject")
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment")
	cmd.Flags().StringVar(&actor, "actor", "", "user id of the decider")
	cmd.Flags().StringVar(&actorDepartment, "actor-department", "", "department of the decider")
	cmd.Flags().StringVar(&role, "role", string(entity.RoleDepartmentHead), "role of the decider")
	_ = cmd.MarkFlagRequired("department")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage the user directory"}

	var name, department, role, openID string
	upsert := &cobra.Command{
		Use:   "upsert <user-id>",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := entity.ParseRole(role)
			if err != nil {
				return err
			}
			u := &entity.User{UserID: args[0], DisplayName: name, Role: r, LarkOpenID: openID}
			if department != "" {
				d, err := entity.ParseDepartment(department)
				if err != nil {
					return err
				}
				u.Department = d
			}
			return withServices(cmd.Context(), func(ctx context.Context, _ *container.ServiceBundle, repos *container.RepositoryBundle) error {
				if err := repos.User.Upsert(ctx, u); err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	upsert.Flags().StringVar(&name, "name", "", "display name")
	upsert.Flags().StringVar(&department, "department", "", "department code")
	upsert.Flags().StringVar(&role, "role", string(entity.RoleStaff), "role")
	upsert.Flags().StringVar(&openID, "lark-open-id", "", "Lark open id for notifications")
	usr.AddCommand(upsert)
	return usr
}

func tokenCmd() *cobra.Command {
	var department, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an API bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := entity.ParseRole(role)
			if err != nil {
				return err
			}
			actor := entity.Actor{UserID: args[0], Role: r}
			if department != "" {
				d, err := entity.ParseDepartment(department)
				if err != nil {
					return err
				}
				actor.Department = d
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := httpInterface.NewTokenAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(actor, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department claim")
	cmd.Flags().StringVar(&role, "role", string(entity.RoleStaff), "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from auth.token_ttl)")
	return cmd
}

// withServices wires the services over the configured database, runs fn and
// waits for queued notifications before returning.
func withServices(ctx context.Context, fn func(context.Context, *container.ServiceBundle, *container.RepositoryBundle) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cc := cfg.ToContainerConfig()

	dbBundle, err := container.ProvideDatabase(&cc.Database, logger)
	if err != nil {
		return err
	}
	defer dbBundle.SqlDB.Close()

	repos, err := container.ProvideRepositories(dbBundle.SqlDB, logger)
	if err != nil {
		return err
	}
	messaging, err := container.ProvideMessaging(&cc.Notification, logger)
	if err != nil {
		return err
	}
	disp, err := container.ProvideDispatcher(logger)
	if err != nil {
		return err
	}
	defer func(d dispatcher.Dispatcher) { _ = d.Close() }(disp)

	services, err := container.ProvideServices(&container.ServiceDeps{
		Config:     cc,
		Repos:      repos,
		TxManager:  dbBundle.TransactionMgr,
		Messenger:  messaging.Messenger,
		Dispatcher: disp,
		Logger:     logger,
		SyncEvents: true,
	})
	if err != nil {
		return err
	}
	if err := container.RegisterEventHandlers(disp, services, logger); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, services, repos)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	if !viper.GetBool("verbose") {
		return cfg, zap.NewNop(), nil
	}
	lc := cfg.ToLoggerConfig()
	lc.OutputPath = "stderr"
	lc.Format = "console"
	logger, err := utils.NewLogger(lc)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func lookupAggregate(ctx context.Context, s *container.ServiceBundle, ref string) (*entity.WorkflowAggregate, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.Approval.GetAggregate(ctx, id)
	}
	return s.Approval.GetAggregateByCode(ctx, strings.ToUpper(ref))
}

func printAggregate(agg *entity.WorkflowAggregate) {
	fmt.Printf("%s  %s  (%s)\n", agg.Code, agg.Title, agg.Kind)
	fmt.Printf("owner: %s  status: %s  released: %s\n\n", agg.OwnerID, agg.Status, yesNo(agg.Released))

	tw := newTable()
	tw.SetTitle("Departments")
	tw.AppendHeader(table.Row{"Department", "Status", "Decided By", "Decided At", "Decisions"})
	for _, ds := range agg.DepartmentStatuses() {
		at := ""
		if ds.DecidedAt != nil {
			at = ds.DecidedAt.Local().Format(time.DateTime)
		}
		tw.AppendRow(table.Row{ds.Department, ds.Status, ds.DecidedBy, at, ds.Decisions})
	}
	tw.Render()

	tw = newTable()
	tw.SetTitle("Approval log")
	tw.AppendHeader(table.Row{"Department", "Decision", "Actor", "Timestamp", "Comment"})
	for _, dept := range agg.Departments {
		for _, rec := range agg.ApprovalLog[dept] {
			tw.AppendRow(table.Row{dept, rec.Status, rec.Actor, rec.Timestamp.Local().Format(time.DateTime), rec.Comment})
		}
	}
	tw.Render()
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
