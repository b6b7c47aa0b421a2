package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/ollama-tavern/internal/console"
	"github.com/zhouzirui/ollama-tavern/internal/service/ai"
)

func newModelsCmd(v *viper.Viper, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the backend can serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, v, *debug)
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			backend, err := ai.NewBackend(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			models, err := backend.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			if len(models) == 0 {
				fmt.Fprintln(e.out, e.styles.Muted.Render("No models installed. Pull one with 'ollama pull llama3'."))
				return nil
			}
			for _, m := range models {
				if m.Name == "" {
					continue
				}
				line := fmt.Sprintf("%-32s %s", m.Name, console.ModelLabel(m))
				if m.ParameterSize != "" {
					line += " " + e.styles.Muted.Render(m.ParameterSize)
				}
				fmt.Fprintln(e.out, line)
			}
			return nil
		},
	}
}
