package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rangeidx"
	"github.com/hupe1980/rangeidx/selection"
)

// openSource opens the sidecar named by the first argument and applies the
// key=value selection of the remaining ones and the --order flags.
func openSource(cmd *cobra.Command, s *session, args []string) (*rangeidx.Source, error) {
	data, _ := cmd.Flags().GetString("data")
	src, err := s.client.OpenSidecar(cmd.Context(), args[0], data, nil)
	if err != nil {
		return nil, err
	}

	req, err := selection.ParseArgs(args[1:])
	if err != nil {
		return nil, err
	}
	if len(req) > 0 {
		if src, err = src.Select(req); err != nil {
			return nil, err
		}
	}

	orders, _ := cmd.Flags().GetStringArray("order")
	if len(orders) > 0 {
		spec, err := parseOrder(orders)
		if err != nil {
			return nil, err
		}
		if src, err = src.OrderBy(spec...); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// parseOrder turns "key", "key=asc|desc" and "key=v1/v2" into OrderBy
// arguments, keeping flag order.
func parseOrder(flags []string) ([]any, error) {
	out := make([]any, 0, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if k == "" {
			return nil, fmt.Errorf("invalid order %q", f)
		}
		switch {
		case !ok:
			out = append(out, k)
		case strings.Contains(v, "/"):
			out = append(out, map[string]any{k: strings.Split(v, "/")})
		default:
			out = append(out, map[string]any{k: v})
		}
	}
	return out, nil
}

func withSession(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer func() { _ = s.close() }()
		return run(cmd, s, args)
	}
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("data", "", "data URL of entries without _path")
	cmd.Flags().StringArray("order", nil, "order key: name, name=asc|desc or name=v1/v2 (repeatable)")
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <index-url>",
		Short: "Load a JSON lines index into the cache",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			src, err := openSource(cmd, s, args[:1])
			if err != nil {
				return err
			}
			idx := src.Index()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records, keys %s\n",
				idx.Resource(), idx.Len(), strings.Join(idx.Schema(), ","))
			return nil
		}),
	}
	addSourceFlags(cmd)
	return cmd
}

func newSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <index-url> [key=v1/v2 ...]",
		Short: "List the selected records",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			src, err := openSource(cmd, s, args)
			if err != nil {
				return err
			}
			schema := src.Index().Schema()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "PATH\tOFFSET\tLENGTH\t%s\n", strings.ToUpper(strings.Join(schema, "\t")))
			for _, e := range src.Entries() {
				vals := make([]string, len(schema))
				for i, k := range schema {
					if v, ok := e.Get(k); ok {
						vals[i] = v
					} else {
						vals[i] = "-"
					}
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", e.Path, e.Offset, e.Length, strings.Join(vals, "\t"))
			}
			return tw.Flush()
		}),
	}
	addSourceFlags(cmd)
	return cmd
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <index-url> [key=v1/v2 ...]",
		Short: "Show the range requests a fetch would issue",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			src, err := openSource(cmd, s, args)
			if err != nil {
				return err
			}
			plan, err := src.Plan(s.cfg.Method)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, path := range plan.Paths {
				fmt.Fprintln(w, path)
				for _, b := range plan.Blocks[path] {
					fmt.Fprintf(w, "  bytes=%d-%d\t%d records\n", b.Offset, b.End()-1, len(b.Parts))
				}
			}
			st := plan.Stats()
			fmt.Fprintf(w, "method %s: %d requests, %d records, %d bytes requested, %d bytes downloaded (%.1f%% overhead)\n",
				s.cfg.Method, st.Requests, st.Parts, st.RequestedBytes, st.DownloadedBytes, 100*st.Overhead())
			return nil
		}),
	}
	addSourceFlags(cmd)
	return cmd
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <index-url> [key=v1/v2 ...]",
		Short: "Download the selected records, concatenated",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			src, err := openSource(cmd, s, args)
			if err != nil {
				return err
			}
			fs, err := src.Retrieve(cmd.Context(), s.cfg.Method)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("output")
			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			n, err := fs.WriteTo(w)
			if err != nil {
				return err
			}
			st := fs.Stats()
			s.client.Logger().InfoContext(cmd.Context(), "fetched",
				"records", fs.Len(),
				"bytes", n,
				"requests", st.Requests,
			)
			return nil
		}),
	}
	addSourceFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	return cmd
}
