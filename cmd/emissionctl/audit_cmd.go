package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/audit"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/intake"
)

func newVerifyCmd(c *cli) *cobra.Command {
	var bundlePath, hash string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the live hash chains, a bundle file or an archived bundle",
		Long: `Without flags, verify re-hashes the notice log and every vessel history.
With --bundle or --hash it verifies an evidence bundle instead.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch {
			case bundlePath != "" && hash != "":
				return usageError{errors.New("--bundle and --hash are mutually exclusive")}
			case bundlePath != "":
				data, err := os.ReadFile(bundlePath)
				if err != nil {
					return err
				}
				return c.verifyBundle(data)
			case hash != "":
				a, err := c.open(ctx)
				if err != nil {
					return err
				}
				arch, err := a.archive(ctx)
				if err != nil {
					return err
				}
				defer closeArchive(arch)
				data, err := arch.Get(ctx, hash)
				if err != nil {
					return err
				}
				return c.verifyBundle(data)
			}
			return c.verifyLive(ctx)
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "path to an evidence bundle")
	cmd.Flags().StringVar(&hash, "hash", "", "archived bundle hash (sha256:...)")
	return cmd
}

func (c *cli) verifyBundle(data []byte) error {
	m, err := audit.VerifyBundle(data)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "bundle %s verified: %d vessels, %d records, %d notices\n",
		m.BundleID, m.VesselCount, m.RecordCount, m.NoticeCount)
	return nil
}

func (c *cli) verifyLive(ctx context.Context) error {
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	if err := a.notices.Verify(ctx); err != nil {
		return err
	}
	vessels, err := a.registry.List(ctx)
	if err != nil {
		return err
	}
	for _, v := range vessels {
		if err := a.ledger.VerifyHistory(ctx, v.ID); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintf(c.stdout, "ledger verified: notice log and %d vessel histories intact\n", len(vessels))
	return nil
}

func newExportCmd(c *cli) *cobra.Command {
	var (
		out       string
		vessels   []string
		toArchive bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an evidence bundle to a file and/or the configured archive",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" && !toArchive {
				return usageError{errors.New("nothing to do: pass --out and/or --archive")}
			}
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			data, m, err := audit.NewExporter(a.store).GenerateBundle(ctx, audit.ExportRequest{VesselIDs: vessels})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "bundle %s: %d vessels, %d records, %d notices\n",
				m.BundleID, m.VesselCount, m.RecordCount, m.NoticeCount)

			if out != "" {
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(c.stdout, "written: %s\n", out)
			}
			if toArchive {
				arch, err := a.archive(ctx)
				if err != nil {
					return err
				}
				defer closeArchive(arch)
				hash, err := arch.Put(ctx, data)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(c.stdout, "archived: %s\n", hash)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the bundle to this path")
	cmd.Flags().StringSliceVar(&vessels, "vessel", nil, "limit histories to these vessels (repeatable)")
	cmd.Flags().BoolVar(&toArchive, "archive", false, "store the bundle in the configured archive")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Replay a JSON-lines batch of readings through the ledger",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			im, err := intake.NewImporter(a.recorder, c.cfg.Intake.RatePerSecond, c.cfg.Intake.Burst)
			if err != nil {
				return err
			}
			res, err := im.Import(ctx, in)
			if err != nil {
				return err
			}
			for _, rej := range res.Rejected {
				_, _ = fmt.Fprintf(c.stderr, "rejected: %v\n", rej)
			}
			_, _ = fmt.Fprintf(c.stdout, "accepted: %d\nviolations: %d\nrejected: %d\n",
				res.Accepted, res.Violations, len(res.Rejected))
			if len(res.Rejected) > 0 {
				return fmt.Errorf("%d batch lines rejected", len(res.Rejected))
			}
			return nil
		},
	}
	return cmd
}

func closeArchive(s any) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}
