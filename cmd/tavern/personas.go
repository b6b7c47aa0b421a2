package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
)

func newPersonasCmd(v *viper.Viper, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "personas",
		Aliases: []string{"prompts"},
		Short:   "List the characters found by the persona pattern",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, v, *debug)
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			store := persona.NewFileStore(e.cfg.Persona.Pattern, e.logger.Named("persona"))
			items := store.List()
			if len(items) == 0 {
				fmt.Fprintf(e.out, "No persona files match %q.\n", store.Pattern())
				return nil
			}
			for _, p := range items {
				fmt.Fprintf(e.out, "%-20s %s\n", p.ID, e.styles.Muted.Render(p.Name))
			}
			return nil
		},
	}
}
