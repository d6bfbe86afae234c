package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propsight/market-cli/internal/promote"
	"github.com/propsight/market-cli/internal/verify"
)

var (
	verifyName   string
	verifyFields []string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <entityKey>",
	Short: "Cross-check a project's stored fields against external sources",
	Long:  "Queries every configured verification adapter and records a candidate per field. Agreement from three independent sources confirms a value automatically; anything less stays open for review.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("verify"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		canonical, err := promote.NewPostgresStore(pool).GetCanonical(ctx, "project", args[0])
		if err != nil {
			return err
		}
		if canonical == nil {
			return eris.Errorf("no canonical project %q", args[0])
		}

		name := verifyName
		if name == "" {
			name, _ = canonical.Fields["name"].(string)
		}
		if name == "" {
			return eris.New("project has no stored name; pass --name")
		}

		rules, err := loadAuthorityTable()
		if err != nil {
			return err
		}

		v := verify.NewVerifier(verify.NewPostgresStore(pool), rules, buildAdapters()...)
		candidates, err := v.Verify(ctx, verify.Request{
			EntityType:  "project",
			EntityKey:   args[0],
			ProjectName: name,
			Fields:      verifyFields,
			Current:     canonical.Fields,
			Origin:      verify.OriginDatabase,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFIELD\tCURRENT\tVERIFIED\tAGREE\tTOTAL\tSTATUS\tREVIEW")
		for _, c := range candidates {
			fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%d\t%d\t%s\t%s\n",
				truncateID(c.ID), c.Field, c.CurrentValue, c.VerifiedValue,
				c.AgreeingSourceCount, c.TotalSourceCount,
				c.VerificationStatus, c.ReviewStatus)
		}
		w.Flush()
		return nil
	},
}

var verifyQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List open verification candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("verify"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		candidates, err := verify.NewPostgresStore(pool).ListCandidates(ctx, verify.CandidateFilter{
			ReviewStatus: verify.ReviewOpen,
			Limit:        limit,
		})
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No open candidates.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENTITY\tFIELD\tCURRENT\tVERIFIED\tAGREE/TOTAL\tSTATUS\tCREATED")
		for _, c := range candidates {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%d/%d\t%s\t%s\n",
				truncateID(c.ID), c.EntityKey, c.Field, c.CurrentValue, c.VerifiedValue,
				c.AgreeingSourceCount, c.TotalSourceCount,
				c.VerificationStatus, c.CreatedAt.Format("2006-01-02"))
		}
		w.Flush()
		return nil
	},
}

func verifyDecisionCmd(use, short string, decide func(*verify.Verifier, *cobra.Command, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <candidate-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate("verify"); err != nil {
				return err
			}

			pool, err := initPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			rules, err := loadAuthorityTable()
			if err != nil {
				return err
			}
			return decide(verify.NewVerifier(verify.NewPostgresStore(pool), rules), cmd, args[0])
		},
	}
}

func init() {
	verifyCmd.Flags().StringVar(&verifyName, "name", "", "project name to search with (default: stored name)")
	verifyCmd.Flags().StringSliceVar(&verifyFields, "fields", []string{"total_units"}, "fields to cross-check")

	verifyQueueCmd.Flags().Int("limit", 50, "max number of candidates to display")

	approveCmd := verifyDecisionCmd("approve", "Approve a candidate with a resolution",
		func(v *verify.Verifier, cmd *cobra.Command, id string) error {
			resolution, _ := cmd.Flags().GetString("resolution")
			return v.Approve(cmd.Context(), id, verify.Resolution(resolution))
		})
	approveCmd.Flags().String("resolution", string(verify.ResolveKeepCurrent),
		"resolution (keep_current, update_to_verified, needs_investigation, source_error)")

	rejectCmd := verifyDecisionCmd("reject", "Reject a candidate as a source error",
		func(v *verify.Verifier, cmd *cobra.Command, id string) error {
			return v.Reject(cmd.Context(), id, "")
		})

	deferCmd := verifyDecisionCmd("defer", "Defer a candidate for later investigation",
		func(v *verify.Verifier, cmd *cobra.Command, id string) error {
			return v.Defer(cmd.Context(), id)
		})

	verifyCmd.AddCommand(verifyQueueCmd, approveCmd, rejectCmd, deferCmd)
	rootCmd.AddCommand(verifyCmd)
}
