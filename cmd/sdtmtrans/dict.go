package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/dictionary"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/version"
)

func dictCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Manage the dictionary database",
	}
	cmd.AddCommand(dictImportCmd(e), dictVersionsCmd(e))
	return cmd
}

func dictImportCmd(e *env) *cobra.Command {
	var kind, ver, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a dictionary CSV (meddra, whodrug, ig or library)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := dictionary.ParseKind(kind)
			if err != nil {
				return configErr(err)
			}
			if file == "" {
				return configErr(fmt.Errorf("--file is required"))
			}
			f, err := os.Open(file)
			if err != nil {
				return configErr(err)
			}
			defer func() {
				_ = f.Close()
			}()

			store, err := dictionary.Open(cmd.Context(), e.cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			n, err := store.Import(cmd.Context(), k, ver, f)
			if err != nil {
				return err
			}
			e.log.Info().Str("kind", string(k)).Str("version", dictionary.NormalizeVersion(string(k), ver)).Int("rows", n).Msg("dictionary imported")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s rows\n", n, k)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "meddra, whodrug, ig or library")
	cmd.Flags().StringVar(&ver, "version", "", "Dictionary version, e.g. 27.1.english or global.2025.mar.1.english")
	cmd.Flags().StringVar(&file, "file", "", "CSV file with a header row")
	return cmd
}

func dictVersionsCmd(e *env) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List the imported versions of a dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := dictionary.ParseKind(kind)
			if err != nil {
				return configErr(err)
			}
			store, err := dictionary.Open(cmd.Context(), e.cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()
			vs, err := store.Versions(cmd.Context(), k)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(vs, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "meddra", "meddra, whodrug or ig")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Current)
		},
	}
}
