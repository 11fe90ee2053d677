package main

import (
	"fmt"
	"io"

	"github.com/andrewpillar/sponsorpay"

	"github.com/spf13/cobra"
)

func feesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees <subtotal>",
		Short: "Print the fee breakdown of a subtotal in dollars",
		Long: `Print the fee breakdown of a subtotal in dollars.

Examples:
  sponsorpay fees 500.00
  sponsorpay fees 500.00 --cover --rate 2.9
  sponsorpay fees 500.00 --waived`,
		Args: cobra.ExactArgs(1),
		RunE: runFees,
	}

	cmd.Flags().Bool("cover", false, "the sponsor covers the platform fee")
	cmd.Flags().Bool("waived", false, "the organizer is exempt from the platform fee")
	cmd.Flags().String("rate", "", "platform fee percent, defaults to the configured platformFeePercent")

	return cmd
}

func runFees(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)

	if err != nil {
		return err
	}

	subtotal, err := sponsorpay.ParseCents(args[0])

	if err != nil {
		return err
	}

	rate := cfg.Payments().PlatformFeePercent

	if s, _ := cmd.Flags().GetString("rate"); s != "" {
		if rate, err = sponsorpay.ParseFeeRate(s); err != nil {
			return err
		}
	}

	cover, _ := cmd.Flags().GetBool("cover")
	waived, _ := cmd.Flags().GetBool("waived")

	b := sponsorpay.ComputeFees(subtotal, sponsorpay.FeeOptions{
		FeesWaived: waived,
		CoverFees:  cover,
		Rate:       rate,
	})

	printFees(cmd.OutOrStdout(), rate, b)
	return nil
}

func printFees(w io.Writer, rate sponsorpay.FeeRate, b sponsorpay.FeeBreakdown) {
	fmt.Fprintf(w, "rate            %s%%\n", rate)
	fmt.Fprintf(w, "subtotal        %s\n", sponsorpay.FormatCents(b.SubtotalCents))
	fmt.Fprintf(w, "platform fee    %s\n", sponsorpay.FormatCents(b.ApplicationFeeCents))
	fmt.Fprintf(w, "sponsor pays    %s\n", sponsorpay.FormatCents(b.SponsorTotalCents))
	fmt.Fprintf(w, "organizer nets  %s\n", sponsorpay.FormatCents(b.OrganizerNetCents))

	if b.Covered {
		fmt.Fprintln(w, "fee covered by the sponsor")
	}
}
