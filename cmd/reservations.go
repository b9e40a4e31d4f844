package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/tablehold/internal/bookings"
	"github.com/example/tablehold/internal/crypto"
)

func newReservationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "Inspect journaled reservations",
	}
	cmd.AddCommand(newReservationsListCmd())
	return cmd
}

func newReservationsListCmd() *cobra.Command {
	var userID string
	c := &cobra.Command{
		Use:   "list",
		Short: "List reservations for a user, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			aead, err := crypto.New(cfg.PaymentEncKey)
			if err != nil {
				return err
			}
			rs, err := bookings.NewRepo(d, aead).ListByUser(ctx, userID)
			if err != nil {
				return err
			}
			for _, r := range rs {
				fmt.Fprintf(cmd.OutOrStdout(), "id=%s code=%s status=%s slot=%s party=%d deposit=%d refund=%d created=%s\n",
					r.ID, r.ConfirmationCode, r.Status, r.Slot(), r.PartySize, r.DepositAmount, r.RefundAmount,
					r.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	c.Flags().StringVar(&userID, "user-id", "", "user id")
	_ = c.MarkFlagRequired("user-id")
	return c
}
