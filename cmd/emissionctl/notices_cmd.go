package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/query"
)

func newNoticesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "Inspect the compliance notice log",
	}

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List notices in filing order",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			notices, err := a.notices.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if filter != "" {
				ev, err := query.NewEvaluator()
				if err != nil {
					return err
				}
				if notices, err = ev.Notices(filter, notices); err != nil {
					return usageError{err}
				}
			}
			return c.printJSON(nonNil(notices))
		},
	}
	list.Flags().StringVar(&filter, "filter", "", `CEL filter over "notice", e.g. 'notice.flag_state == "Panama"'`)

	cmd.AddCommand(list)
	return cmd
}

func newFilerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filer",
		Short: "Manage the identity allowed to file notices",
	}

	var caller string
	set := &cobra.Command{
		Use:   "set <identity>",
		Short: "Authorize an identity as the notice filer (administrator only)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.notices.SetFiler(cmd.Context(), c.callerOrAdmin(caller), contracts.Identity(args[0])); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "notice filer: %s\n", args[0])
			return nil
		},
	}
	set.Flags().StringVar(&caller, "as", "", "calling identity (defaults to the configured administrator)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the authorized notice filer",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			filer, ok, err := a.notices.Filer(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(c.stdout, "notice filer: (unset)")
				return nil
			}
			_, _ = fmt.Fprintf(c.stdout, "notice filer: %s\n", filer)
			return nil
		},
	}

	cmd.AddCommand(set, show)
	return cmd
}
