package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/app"
)

// datasetFlags are shared by every command that loads a directory.
func datasetFlags(cmd *cobra.Command) {
	cmd.Flags().String("dir", "", "Dataset directory (env: DATA_DIR)")
	cmd.Flags().String("mode", "", "Ingest mode RAW or SDTM (env: MODE)")
	cmd.Flags().String("direction", "", "Translation direction zh_to_en or en_to_zh (env: TRANSLATION_DIRECTION)")
	cmd.Flags().Bool("hide-supp", false, "Show SUPP qualifiers inside parent previews; default true in SDTM mode (env: HIDE_SUPP_IN_PREVIEW)")
	cmd.Flags().Int("workers", 0, "Concurrent file readers and translators (env: WORKERS)")
}

// withSession opens resources, ingests --dir and hands the session to fn.
func (e *env) withSession(cmd *cobra.Command, fn func(rt *resources) error) error {
	rt, err := e.open(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := e.ingest(cmd.Context(), rt); err != nil {
		return err
	}
	return fn(rt)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a dataset directory and summarize it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withSession(cmd, func(rt *resources) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "DATASET\tROWS\tCOLUMNS\tSUPP\tLABEL")
				for _, d := range rt.session.Info() {
					_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n", d.Name, d.Rows, d.Columns, d.IsSupp, d.Label)
				}
				return tw.Flush()
			})
		},
	}
	datasetFlags(cmd)
	return cmd
}

func infoCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print dataset info as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withSession(cmd, func(rt *resources) error {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"flags":    rt.session.Catalog().Flags(),
					"datasets": rt.session.Info(),
				})
			})
		},
	}
	datasetFlags(cmd)
	return cmd
}

func previewCmd(e *env) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "preview DATASET",
		Short: "Print one page of a dataset as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd, func(rt *resources) error {
				p, err := rt.session.Preview(args[0], offset, limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	datasetFlags(cmd)
	cmd.Flags().IntVar(&offset, "offset", 0, "First row")
	cmd.Flags().IntVar(&limit, "limit", 100, "Rows per page, 0 for all")
	return cmd
}

func sourcesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources PARENT",
		Short: "List the SUPP qualifiers available to a parent dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd, func(rt *resources) error {
				vars, supp, err := rt.session.SourceVariables(args[0])
				if err != nil {
					return err
				}
				if supp == "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "no SUPP dataset for %s\n", args[0])
					return nil
				}
				for _, v := range vars {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s.%s\n", supp, v)
				}
				return nil
			})
		},
	}
	datasetFlags(cmd)
	return cmd
}

func mergeCmd(e *env) *cobra.Command {
	var rulesPath, name, previewOut string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Apply a variable-merge rule file and save it as the directory's mapping config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rulesPath == "" {
				return configErr(fmt.Errorf("--rules is required"))
			}
			rules, err := app.ReadRules(rulesPath)
			if err != nil {
				return configErr(err)
			}
			if name == "" {
				name = filepath.Base(rulesPath)
			}
			return e.withSession(cmd, func(rt *resources) error {
				rep, err := rt.session.ApplyMerge(cmd.Context(), name, rules)
				if err != nil {
					return err
				}
				if previewOut != "" {
					if err := writePreviews(rt.session, previewOut); err != nil {
						return err
					}
				}
				return writeJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	datasetFlags(cmd)
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Merge rule file (YAML or JSON)")
	cmd.Flags().StringVar(&name, "name", "", "Name of the saved mapping config (default: rule file name)")
	cmd.Flags().StringVar(&previewOut, "preview-out", "", "Directory to write every merged dataset preview to, as JSON")
	return cmd
}

// writePreviews dumps every dataset's full preview into dir.
func writePreviews(s *app.Session, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	for _, name := range s.Catalog().Names() {
		p, err := s.Preview(name, 0, 0)
		if err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(dir, name+".json"))
		if err != nil {
			return err
		}
		if err := writeJSON(f, p); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
