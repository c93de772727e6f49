package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/query"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/registry"
)

func newInitCmd(c *cli) *cobra.Command {
	var fleetPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bind the administrator, authorize the ledger as notice filer and seed the fleet",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			admin := contracts.Identity(c.cfg.Ledger.Admin)
			if admin == "" {
				return usageError{errors.New("administrator identity is required (--admin or EMISSION_LEDGER_ADMIN)")}
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := a.guard.Bootstrap(ctx, admin); err != nil {
				return err
			}
			if err := a.notices.SetFiler(ctx, admin, a.ledger.Identity()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "administrator: %s\nnotice filer:  %s\n", admin, a.ledger.Identity())

			if fleetPath == "" {
				fleetPath = c.cfg.Ledger.Fleet
			}
			if fleetPath == "" {
				return nil
			}
			fleet, err := registry.LoadFleet(fleetPath)
			if err != nil {
				return err
			}
			n, err := a.registry.Seed(ctx, admin, fleet)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "vessels seeded: %d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetPath, "fleet", "", "YAML fleet file to register")
	return cmd
}

func newVesselCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vessel",
		Short: "Manage the vessel registry",
	}

	var caller, owner, flagState string
	register := &cobra.Command{
		Use:   "register <vessel-id>",
		Short: "Register or re-register a vessel (administrator only)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			v, err := a.registry.Register(ctx, c.callerOrAdmin(caller), args[0], contracts.Identity(owner), flagState)
			if err != nil {
				return err
			}
			return c.printJSON(v)
		},
	}
	register.Flags().StringVar(&caller, "as", "", "calling identity (defaults to the configured administrator)")
	register.Flags().StringVar(&owner, "owner", "", "owner identity")
	register.Flags().StringVar(&flagState, "flag-state", "", "flag state")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered vessels",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			vessels, err := a.registry.List(cmd.Context())
			if err != nil {
				return err
			}
			return c.printJSON(nonNil(vessels))
		},
	}

	show := &cobra.Command{
		Use:   "show <vessel-id>",
		Short: "Show one vessel",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			v, err := a.registry.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(v)
		},
	}

	cmd.AddCommand(register, list, show)
	return cmd
}

func newRecordCmd(c *cli) *cobra.Command {
	var (
		caller string
		r      contracts.Reading
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a sulfur reading for a vessel (owner only)",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			rec, err := a.recorder.RecordEmission(ctx, contracts.Identity(caller), r)
			if err != nil {
				return err
			}
			return c.printJSON(rec)
		},
	}
	f := cmd.Flags()
	f.StringVar(&caller, "as", "", "calling identity (the vessel owner)")
	f.StringVar(&r.VesselID, "vessel", "", "vessel id")
	f.Uint64Var(&r.SulfurContent, "sulfur", 0, "sulfur content in hundredths of a percent m/m")
	f.StringVar(&r.Position, "position", "", "free-form position")
	f.BoolVar(&r.IsECA, "eca", false, "the reading was taken inside an Emission Control Area")
	f.StringVar(&r.PortState, "port-state", "", "port state")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "history <vessel-id>",
		Short: "Print a vessel's emission history in recording order",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			history, err := a.recorder.GetEmissionHistory(ctx, args[0])
			if err != nil {
				return err
			}
			if filter != "" {
				ev, err := query.NewEvaluator()
				if err != nil {
					return err
				}
				if history, err = ev.Records(filter, history); err != nil {
					return usageError{err}
				}
			}
			return c.printJSON(nonNil(history))
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", `CEL filter over "record", e.g. '!record.is_compliant'`)
	return cmd
}

func (c *cli) callerOrAdmin(caller string) contracts.Identity {
	if caller != "" {
		return contracts.Identity(caller)
	}
	return contracts.Identity(c.cfg.Ledger.Admin)
}

// nonNil makes empty results print as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
