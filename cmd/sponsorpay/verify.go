package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andrewpillar/sponsorpay"

	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <session-id>",
		Short: "Verify a Stripe Checkout Session, settling its sponsorships",
		Long: `Verify a Stripe Checkout Session, settling its sponsorships.

The sponsorships settled are the ones in the session's metadata. Passing
--ids, or --ids-file restricts the settlement to those of the given IDs that
are in the metadata. The file holds one or more IDs per line, use - to read
them from stdin.

Examples:
  sponsorpay verify cs_test_123
  sponsorpay verify cs_test_123 --ids sp_1,sp_2
  sponsorpay verify cs_test_123 --ids-file sponsorships.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}

	cmd.Flags().String("ids", "", "comma separated sponsorship IDs")
	cmd.Flags().String("ids-file", "", "file of sponsorship IDs")

	return cmd
}

func readIDs(cmd *cobra.Command) ([]string, error) {
	if s, _ := cmd.Flags().GetString("ids"); s != "" {
		return sponsorpay.ParseIDs(s), nil
	}

	path, _ := cmd.Flags().GetString("ids-file")

	if path == "" {
		return nil, nil
	}

	var r io.Reader = cmd.InOrStdin()

	if path != "-" {
		f, err := os.Open(path)

		if err != nil {
			return nil, err
		}
		defer f.Close()

		r = f
	}
	return sponsorpay.ReadIDs(r)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)

	if err != nil {
		return err
	}

	ids, err := readIDs(cmd)

	if err != nil {
		return err
	}

	db, err := openDB(cfg.Database)

	if err != nil {
		return err
	}
	defer db.Close()

	svc, dispatcher := newService(cfg, db, slog.Default())

	st, err := svc.VerifyStripeSession(cmd.Context(), args[0], ids)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if cerr := dispatcher.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: paid=%t updated=%d\n", args[0], st.Settled, st.Count)
	return nil
}
