package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propsight/market-cli/internal/promote"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage the promotion review queue",
	Long:  "Lists and settles entity candidates that promotion refused to apply automatically: Tier C submissions, authority conflicts, and schema changes.",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entityType, _ := cmd.Flags().GetString("entity-type")
		reason, _ := cmd.Flags().GetString("reason")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		candidates, err := promote.NewPostgresStore(pool).ListCandidates(ctx, promote.CandidateFilter{
			EntityType:   entityType,
			Reason:       promote.CandidateReason(reason),
			ReviewStatus: promote.ReviewStatus(status),
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "review list")
		}
		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No candidates found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tKEY\tSOURCE\tTIER\tREASON\tSTATUS\tCREATED")
		for _, c := range candidates {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				truncateID(c.ID), c.EntityType, c.EntityKey,
				c.SourceDomain, c.SourceTier, c.Reason, c.ReviewStatus,
				c.CreatedAt.Format("2006-01-02"))
		}
		w.Flush()
		return nil
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <candidate-id>",
	Short: "Show a candidate with its conflict details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		c, err := promote.NewPostgresStore(pool).GetCandidate(ctx, args[0])
		if err != nil {
			return err
		}
		if c == nil {
			return eris.Errorf("candidate %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <candidate-id>",
	Short: "Approve a candidate and apply its fields to canonical",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		reviewer, _ := cmd.Flags().GetString("reviewer")
		engine, err := buildPromoteEngine(pool)
		if err != nil {
			return err
		}

		canonical, err := engine.ApproveCandidate(ctx, args[0], reviewer)
		if err != nil {
			return err
		}
		fmt.Printf("approved: %s/%s now at tier %s, confidence %.2f\n",
			canonical.EntityType, canonical.EntityKey, canonical.HighestTier, canonical.Confidence)
		return nil
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <candidate-id>",
	Short: "Reject a candidate, leaving canonical untouched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		reviewer, _ := cmd.Flags().GetString("reviewer")
		engine, err := buildPromoteEngine(pool)
		if err != nil {
			return err
		}
		return engine.RejectCandidate(ctx, args[0], reviewer)
	},
}

func init() {
	reviewListCmd.Flags().String("entity-type", "", "filter by entity type")
	reviewListCmd.Flags().String("reason", "", "filter by reason (tier_c_only, conflict, schema_change, low_confidence, field_mismatch)")
	reviewListCmd.Flags().String("status", string(promote.ReviewOpen), "filter by review status")
	reviewListCmd.Flags().Int("limit", 50, "max number of candidates to display")

	reviewApproveCmd.Flags().String("reviewer", "", "reviewer recorded on the decision")
	reviewRejectCmd.Flags().String("reviewer", "", "reviewer recorded on the decision")

	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd, reviewApproveCmd, reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}
