package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/opensora"
	"github.com/ivlev/prompt2video/internal/system"
)

func newOpenSoraCmd(a *app) *cobra.Command {
	var opts opensora.Options
	cmd := &cobra.Command{
		Use:   "opensora",
		Short: "Generate a clip with Open-Sora instead of the image pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			gen := opensora.NewGenerator(system.NewExecRunner(a.logger), a.logger)
			dir, err := gen.Generate(ctx, opts)
			if err != nil {
				a.logger.Error("Open-Sora failed", zap.Error(err))
				return err
			}
			fmt.Printf("Open-Sora output saved to %s\n", dir)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Prompt, "prompt", "p", "", "text prompt for the clip")
	f.StringVar(&opts.Dir, "opensora-dir", "~/Open-Sora", "Open-Sora checkout")
	f.StringVar(&opts.Resolution, "resolution", "256px", "256px or 768px")
	f.BoolVar(&opts.Offload, "offload", false, "offload weights to CPU to save GPU memory")
	f.StringVar(&opts.SaveDir, "save-dir", "samples", "output directory")
	return cmd
}
