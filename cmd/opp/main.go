package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"oppline/internal/app"
	"oppline/internal/config"
	"oppline/internal/db"
	"oppline/internal/domain"
	"oppline/internal/engine"
	"oppline/internal/engine/auth"
	"oppline/internal/repo"
	"oppline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "opp",
	Short: "Oppline CLI",
	Long: `Oppline tracks sales opportunities from draft to architect selection.
- Workspace: the .oppline directory holding the SQLite database; oppline.yml tunes validation thresholds.
- Lifecycle: draft -> submitted -> matching_in_progress -> matches_found -> architect_selected -> completed.
- Cancellation: any non-final opportunity can be cancelled; it can be reactivated within the configured window and returns to the status it held before.
- Submission gate: a complete problem statement, at least one must-have skill, and a timeline are required before matching starts.
- Audit: every status change and field edit is recorded; view with 'opp history' and 'opp changes'.
- Event log: lifecycle events feed webhooks and 'opp log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OPPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(problemCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(skillCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(matchingCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(reactivateCmd())
	rootCmd.AddCommand(selectArchitectCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(cloneCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(changesCmd())
	rootCmd.AddCommand(attachCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func cliActor() auth.Actor {
	return auth.Actor{ID: viper.GetString("actor-id")}
}

func createCmd() *cobra.Command {
	var title, description, customerID, priority string
	var arrCents int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft opportunity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Create(ctx, engine.CreateOptions{
					Title:          title,
					Description:    description,
					CustomerID:     customerID,
					SalesManagerID: viper.GetString("actor-id"),
					ARRCents:       arrCents,
					Priority:       priority,
					Actor:          cliActor(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "opportunity title")
	cmd.Flags().StringVar(&description, "description", "", "opportunity description")
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id")
	cmd.Flags().Int64Var(&arrCents, "arr-cents", 0, "expected annual recurring revenue in cents")
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority (low|medium|high|critical)")
	return cmd
}

func listCmd() *cobra.Command {
	var f repo.OpportunityFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListOpportunities(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Customer", "Status", "Priority", "ARR (cents)"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Title, o.CustomerID, o.Status, o.Priority, o.ARRCents})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.CustomerID, "customer", "", "customer filter")
	cmd.Flags().StringVar(&f.SalesManagerID, "sales-manager", "", "sales manager filter")
	cmd.Flags().StringVar(&f.Query, "query", "", "title/description substring")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func updateCmd() *cobra.Command {
	var title, description, priority, notes, reason string
	var arrCents int64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update opportunity fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.UpdateOptions{ID: args[0], Reason: reason, Actor: cliActor()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("arr-cents") {
					opts.ARRCents = &arrCents
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if cmd.Flags().Changed("notes") {
					opts.Notes = &notes
				}
				o, err := e.UpdateBasicInfo(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().Int64Var(&arrCents, "arr-cents", 0, "new ARR in cents")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	return cmd
}

func problemCmd() *cobra.Command {
	problem := &cobra.Command{
		Use:   "problem",
		Short: "Manage the problem statement",
	}
	problem.AddCommand(problemSetCmd())
	return problem
}

func problemSetCmd() *cobra.Command {
	var ps domain.ProblemStatement
	var reason string
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Set the problem statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.SetProblemStatement(ctx, args[0], ps, cliActor(), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&ps.Title, "title", "", "problem title")
	cmd.Flags().StringVar(&ps.Description, "description", "", "problem description")
	cmd.Flags().StringVar(&ps.BusinessImpact, "business-impact", "", "business impact")
	cmd.Flags().StringVar(&ps.TechnicalRequirements, "technical-requirements", "", "technical requirements")
	cmd.Flags().StringVar(&ps.SuccessCriteria, "success-criteria", "", "success criteria")
	cmd.Flags().StringVar(&ps.Constraints, "constraints", "", "constraints")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	return cmd
}

func timelineCmd() *cobra.Command {
	tl := &cobra.Command{
		Use:   "timeline",
		Short: "Manage the timeline",
	}
	tl.AddCommand(timelineSetCmd())
	return tl
}

func timelineSetCmd() *cobra.Command {
	var start, end, flexibility, reason string
	var durationDays int
	var specificDays []string
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Set the timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tl, err := domain.NewTimelineSpecification(start, end, durationDays, flexibility, specificDays)
				if err != nil {
					return err
				}
				o, err := e.SetTimeline(ctx, args[0], tl, cliActor(), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&durationDays, "duration-days", 0, "expected duration in days")
	cmd.Flags().StringVar(&flexibility, "flexibility", "flexible", "fixed|flexible|negotiable")
	cmd.Flags().StringSliceVar(&specificDays, "day", nil, "specific required day (repeatable)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	return cmd
}

func skillCmd() *cobra.Command {
	skill := &cobra.Command{
		Use:   "skill",
		Short: "Manage skill requirements",
	}
	skill.AddCommand(skillAddCmd())
	skill.AddCommand(skillRemoveCmd())
	return skill
}

func skillAddCmd() *cobra.Command {
	var name, category, importance, proficiency string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a skill requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				skill, err := domain.NewSkillRequirement(name, category, importance, proficiency)
				if err != nil {
					return err
				}
				o, err := e.AddSkill(ctx, args[0], skill, cliActor(), "")
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "skill name")
	cmd.Flags().StringVar(&category, "category", "technical", "technical|soft|industry")
	cmd.Flags().StringVar(&importance, "importance", "must_have", "must_have|nice_to_have")
	cmd.Flags().StringVar(&proficiency, "proficiency", "intermediate", "beginner|intermediate|advanced|expert")
	return cmd
}

func skillRemoveCmd() *cobra.Command {
	var name, category string
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a skill requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.RemoveSkill(ctx, args[0], name, category, cliActor(), "")
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "skill name")
	cmd.Flags().StringVar(&category, "category", "technical", "technical|soft|industry")
	return cmd
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit for matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Submit(ctx, args[0], cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func matchingCmd() *cobra.Command {
	matching := &cobra.Command{
		Use:   "matching",
		Short: "Advance the matching pipeline",
	}
	matching.AddCommand(&cobra.Command{
		Use:   "start <id>",
		Short: "Mark matching as in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.StartMatching(ctx, args[0], cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	})
	matching.AddCommand(&cobra.Command{
		Use:   "found <id>",
		Short: "Mark matches as found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.RecordMatchesFound(ctx, args[0], cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	})
	return matching
}

func cancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Cancel(ctx, args[0], reason, cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason (required)")
	return cmd
}

func reactivateCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Reactivate a cancelled opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Reactivate(ctx, args[0], reason, cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reactivation reason")
	return cmd
}

func selectArchitectCmd() *cobra.Command {
	var architectID string
	cmd := &cobra.Command{
		Use:   "select-architect <id>",
		Short: "Select the architect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.SelectArchitect(ctx, args[0], architectID, cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&architectID, "architect", "", "architect id")
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Complete(ctx, args[0], cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func cloneCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "clone <id>",
		Short: "Clone into a new draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Clone(ctx, args[0], title, cliActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title for the clone")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show status transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStatusHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "From", "To", "By", "Reason"})
				for _, h := range items {
					from := ""
					if h.FromStatus != nil {
						from = string(*h.FromStatus)
					}
					tw.AppendRow(table.Row{h.TS, from, h.ToStatus, h.ChangedBy, h.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func changesCmd() *cobra.Command {
	var field string
	var limit int
	cmd := &cobra.Command{
		Use:   "changes <id>",
		Short: "Show field change audit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListChangeRecords(ctx, repo.ChangeRecordFilters{
					OpportunityID: args[0],
					Field:         field,
					Limit:         limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Field", "Old", "New", "By", "Reason"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.TS, c.FieldChanged, c.OldValue, c.NewValue, c.ChangedBy, c.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "field filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func attachCmd() *cobra.Command {
	attach := &cobra.Command{
		Use:   "attach",
		Short: "Manage attachments",
	}
	attach.AddCommand(attachAddCmd())
	attach.AddCommand(attachListCmd())
	attach.AddCommand(attachRemoveCmd())
	return attach
}

func attachAddCmd() *cobra.Command {
	var fileName, fileType, url string
	var fileSize int64
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add attachment metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AddAttachment(ctx, engine.AttachmentOptions{
					OpportunityID: args[0],
					FileName:      fileName,
					FileType:      fileType,
					FileSize:      fileSize,
					URL:           url,
					Actor:         cliActor(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&fileName, "file-name", "", "file name")
	cmd.Flags().StringVar(&fileType, "file-type", "", "MIME type")
	cmd.Flags().Int64Var(&fileSize, "file-size", 0, "size in bytes")
	cmd.Flags().StringVar(&url, "url", "", "storage URL")
	return cmd
}

func attachListCmd() *cobra.Command {
	var includeRemoved bool
	cmd := &cobra.Command{
		Use:   "list <id>",
		Short: "List attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAttachments(ctx, args[0], includeRemoved)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().BoolVar(&includeRemoved, "include-removed", false, "include soft-removed attachments")
	return cmd
}

func attachRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id> <attachment-id>",
		Short: "Remove an attachment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveAttachment(ctx, args[0], args[1], cliActor())
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show opportunity counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.CountByStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				fmt.Println("Opportunities:")
				for _, s := range domain.AllStatuses() {
					if c, ok := counts[string(s)]; ok {
						fmt.Printf("  %s: %d\n", s, c)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, opportunityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, opportunityID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Opportunity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.OpportunityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&opportunityID, "opportunity", "", "opportunity filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default oppline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name, actorID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key; the raw key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "opk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv("OPPLINE_JWT_SECRET"),
				AllowActorHeader: allowActorHeader || a.Config.Auth.AllowActorHeader,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowActorHeader {
				return fmt.Errorf("OPPLINE_JWT_SECRET is required for bearer auth (or enable auth.allow_actor_header for development)")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, BaseContext: cmd.Context()})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Oppline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept X-Actor-Id without credentials (development)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Repo)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
