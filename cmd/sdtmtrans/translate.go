package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/app"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
)

func rolesFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "roles", "", "Role config file with meddra_config/whodrug_config (YAML or JSON); default: saved config")
}

func worklistCmd(e *env) *cobra.Command {
	var rolesPath, output string
	cmd := &cobra.Command{
		Use:   "worklist",
		Short: "Extract coded terms, uncoded values and labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var roles *terms.RoleConfig
			if rolesPath != "" {
				cfg, err := app.ReadRoles(rolesPath)
				if err != nil {
					return configErr(err)
				}
				roles = &cfg
			}
			return e.withSession(cmd, func(rt *resources) error {
				wl := rt.session.Worklists(roles)
				if output == "" {
					return writeJSON(cmd.OutOrStdout(), wl)
				}
				if err := app.WriteWorklistsFile(output, wl); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s: coded=%d uncoded=%d dataset_labels=%d variable_labels=%d\n",
					output, len(wl.Coded), len(wl.Uncoded), len(wl.DatasetLabels), len(wl.VariableLabels))
				return nil
			})
		},
	}
	datasetFlags(cmd)
	rolesFlag(cmd, &rolesPath)
	cmd.Flags().StringVar(&output, "output", "", "Workbook (.xlsx) to write; JSON on stdout when empty")
	return cmd
}

func translateCmd(e *env) *cobra.Command {
	var rolesPath, rulesPath, output string
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate every worklist item through dictionary, cache and LLM",
		Long: `Translate loads --dir, optionally applies --rules, extracts the worklists and
writes one row per item to --output (CSV, or XLSX by extension). Rows of an
existing CSV output with status ok are reused, so an interrupted run resumes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				return configErr(fmt.Errorf("--output is required"))
			}
			if e.cfg.DataDir == "" {
				return configErr(fmt.Errorf("--dir (or DATA_DIR) is required"))
			}
			rt, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			start := time.Now()
			err = app.RunLocal(cmd.Context(), rt.session, app.LocalRun{
				Dir:        e.cfg.DataDir,
				Mode:       e.cfg.IngestMode(),
				Direction:  e.cfg.TranslationDirection(),
				RulesPath:  rulesPath,
				RolesPath:  rolesPath,
				OutputPath: output,
				Progress:   progressLogger(e, "progress"),
			})
			if err != nil {
				return err
			}
			e.log.Info().Str("output", output).Dur("duration", time.Since(start).Round(time.Millisecond)).Msg("translate run complete")
			return nil
		},
	}
	datasetFlags(cmd)
	rolesFlag(cmd, &rolesPath)
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Merge rule file applied before extraction")
	cmd.Flags().StringVar(&output, "output", "", "Output file (.csv or .xlsx)")
	cmd.Flags().Int("max-retries", 0, "Max retries per item for transient failures (env: MAX_RETRIES)")
	cmd.Flags().Duration("request-timeout", 0, "Per-item request timeout (env: REQUEST_TIMEOUT)")
	cmd.Flags().Float64("rate-limit-rps", 0, "Global LLM request rate limit, 0 disables (env: RATE_LIMIT_RPS)")
	cmd.Flags().Bool("fail-fast", false, "Stop on the first translation error (env: FAIL_FAST)")
	cmd.Flags().String("gemini-model", "", "Gemini model name (env: GEMINI_MODEL)")
	cmd.Flags().String("gemini-base-url", "", "Gemini API base URL override (env: GEMINI_BASE_URL)")
	cmd.Flags().String("redis-url", "", "Redis URL for the translation cache (env: REDIS_URL)")
	cmd.Flags().Duration("cache-ttl", 0, "Translation cache TTL, 0 keeps forever (env: CACHE_TTL)")
	return cmd
}

// progressLogger logs every tenth step and the last one.
func progressLogger(e *env, msg string) core.ProgressFunc {
	return func(done, total int, item string) {
		if done%10 != 0 && done != total {
			return
		}
		e.log.Info().Int("done", done).Int("total", total).Str("item", item).Msg(msg)
	}
}
