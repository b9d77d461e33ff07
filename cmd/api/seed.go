package main

import (
	"errors"
	"fmt"

	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/seed"
	"dealer-crm/internal/tenancy"
	"dealer-crm/internal/users"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var opts seed.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision a demo tenant, dealership, logins and sample call logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openPostgres(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if opts.Region == "" {
				opts.Region = cfg.Ingest.DefaultRegion
			}
			s := &seed.Seeder{
				Tenancy:  tenancy.NewPostgresRepo(db),
				Users:    users.NewPostgresRepo(db),
				CallLogs: calllogs.NewPostgresRepo(db),
				Log:      log,
			}
			res, err := s.Run(cmd.Context(), opts)
			if errors.Is(err, seed.ErrAlreadySeeded) {
				fmt.Fprintln(cmd.OutOrStdout(), "Database already seeded; nothing to do.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded dealership %d (%s) with %d users, %d call logs, %d customers.\n",
				res.Dealership.ID, res.Dealership.Phone, len(res.Users), res.CallLogs, res.Customers)
			fmt.Fprintf(cmd.OutOrStdout(), "Log in as %s\n", seed.AdminEmail)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.DealershipName, "dealership", "", "dealership name")
	cmd.Flags().StringVar(&opts.DealershipPhone, "phone", "", "dealership phone number used to attribute webhooks")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password for the seeded logins")
	cmd.Flags().IntVar(&opts.Customers, "customers", 25, "number of fake customers")
	cmd.Flags().Int64Var(&opts.FakerSeed, "faker-seed", 0, "seed for generated customers (0 is random)")
	return cmd
}
