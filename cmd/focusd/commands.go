package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/focusd/internal/api"
	"github.com/kalambet/focusd/internal/config"
	"github.com/kalambet/focusd/internal/matcher"
	"github.com/kalambet/focusd/internal/store"
	"github.com/kalambet/focusd/internal/syllabus"
)

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the learning service",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/login", map[string]string{
			"email":    email,
			"password": password,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Logged in as %s", email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and stop syncing to the learning service",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/logout", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recently finalized attention sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/sessions?limit=%d", limit))
		if err != nil {
			return err
		}

		var sessions []store.RecentSession
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		for _, s := range sessions {
			title := s.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %s  %4ds  %-11s  %s\n",
				colorize(colorCyan, s.ID[:8]),
				s.Start.Local().Format("2006-01-02 15:04:05"),
				s.DurationSeconds,
				s.Class,
				title,
			)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the pending sync queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/queue")
		if err != nil {
			return err
		}

		var body struct {
			Depth   int              `json:"depth"`
			Records []api.QueueEntry `json:"records"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if body.Depth == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		fmt.Printf("%d record(s) pending:\n", body.Depth)
		for _, rec := range body.Records {
			fmt.Printf("%s  %-9s  queued %s\n",
				colorize(colorCyan, rec.ID[:8]),
				rec.Kind,
				rec.EnqueuedAt.Local().Format(time.RFC3339),
			)
		}
		return nil
	},
}

// --- block ---

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage the domain blocklist",
}

var blockAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Block a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/blocklist", map[string]string{"domain": args[0]})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Blocked %s", args[0])
		return nil
	},
}

var blockRemoveCmd = &cobra.Command{
	Use:   "remove <domain>",
	Short: "Unblock a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/blocklist/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Unblocked %s", args[0])
		return nil
	},
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/blocklist")
		if err != nil {
			return err
		}

		var body struct {
			Domains []string `json:"domains"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Domains) == 0 {
			fmt.Println("No domains blocked.")
			return nil
		}
		for _, d := range body.Domains {
			fmt.Println(d)
		}
		return nil
	},
}

func init() {
	blockCmd.AddCommand(blockAddCmd)
	blockCmd.AddCommand(blockRemoveCmd)
	blockCmd.AddCommand(blockListCmd)
}

// --- plans ---

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage the local plan cache",
}

var plansImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a syllabus PDF as a learning plan",
	Long: `Import a syllabus PDF as a learning plan.

Chapter headings are extracted from the document and stored in the local
plan cache, where the matcher uses them alongside plans from the service.

Example:
  focusd plans import --pdf ./cs301-syllabus.pdf --title "CS 301"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pdfPath, _ := cmd.Flags().GetString("pdf")
		title, _ := cmd.Flags().GetString("title")
		if pdfPath == "" {
			return fmt.Errorf("--pdf is required")
		}

		plan, err := syllabus.ImportPDF(pdfPath, title)
		if err != nil {
			return fmt.Errorf("importing syllabus: %w", err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		if err := st.SavePlan(plan); err != nil {
			return fmt.Errorf("saving plan: %w", err)
		}

		printSuccess("Imported %q with %d chapter(s)", plan.Title, len(plan.Chapters))
		return nil
	},
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		plans, err := st.ListPlans()
		if err != nil {
			return fmt.Errorf("listing plans: %w", err)
		}

		if len(plans) == 0 {
			fmt.Println("No plans cached.")
			return nil
		}
		for _, p := range plans {
			completed := 0
			for _, ch := range p.Chapters {
				if ch.Completed {
					completed++
				}
			}
			fmt.Printf("%s  %-8s  %d/%d chapters  %s\n",
				colorize(colorCyan, p.ID[:8]),
				p.Source,
				completed,
				len(p.Chapters),
				p.Title,
			)
		}
		return nil
	},
}

var plansRemoveCmd = &cobra.Command{
	Use:   "remove <plan_id>",
	Short: "Remove a plan from the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		if err := st.DeletePlan(args[0]); err != nil {
			return fmt.Errorf("removing plan: %w", err)
		}
		printSuccess("Removed plan %s", args[0])
		return nil
	},
}

func init() {
	plansImportCmd.Flags().String("pdf", "", "syllabus PDF to import")
	plansImportCmd.Flags().String("title", "", "plan title (default: first line of the document)")
	plansCmd.AddCommand(plansImportCmd)
	plansCmd.AddCommand(plansListCmd)
	plansCmd.AddCommand(plansRemoveCmd)
}

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match <resource_key>",
	Short: "Match a video against the learning plans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		channel, _ := cmd.Flags().GetString("channel")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/match", api.MatchRequest{
			ResourceKey: args[0],
			Title:       title,
			Channel:     channel,
		})
		if err != nil {
			return err
		}

		var result matcher.Result
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Match == nil {
			printWarning("No match: %s", result.Reason)
			return nil
		}
		printSuccess("Matched plan %s chapter %d (%s, confidence %.2f)",
			result.Match.PlanID,
			result.Match.ChapterIndex,
			result.Match.MatchType,
			result.Match.Confidence,
		)
		return nil
	},
}

func init() {
	matchCmd.Flags().String("title", "", "video title")
	matchCmd.Flags().String("channel", "", "video channel")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configListKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable configuration keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(config.ValidKeys())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListKeysCmd)
}
