package main

import (
	"github.com/spf13/cobra"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/httpapi"
)

func serveCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a session over HTTP",
		Long:  "Serve starts the HTTP API. When --dir is set the directory is loaded before the first request.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if e.cfg.DataDir != "" {
				if err := e.ingest(ctx, rt); err != nil {
					return err
				}
			}

			srv := httpapi.New(rt.session, rt.metrics, e.log, httpapi.Defaults{
				Mode:      e.cfg.IngestMode(),
				Direction: e.cfg.TranslationDirection(),
			})
			return srv.ListenAndServe(ctx, e.cfg.HTTPAddr)
		},
	}
	datasetFlags(cmd)
	cmd.Flags().String("addr", "", "Listen address (env: HTTP_ADDR)")
	cmd.Flags().String("redis-url", "", "Redis URL for the translation cache (env: REDIS_URL)")
	cmd.Flags().String("gemini-model", "", "Gemini model name (env: GEMINI_MODEL)")
	return cmd
}
