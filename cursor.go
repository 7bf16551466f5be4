package main

import (
	"fmt"

	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/state"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func cursorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or reset the stored change cursor",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored cursor and the current source position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := setup(); err != nil {
				return err
			}

			store, err := state.Open(cmd.Context(), &cfg.Config.State)
			if err != nil {
				return err
			}
			defer store.Close()

			stored, err := store.Get(cmd.Context(), cfg.Config.State.Key)
			if err != nil {
				return err
			}

			exec, err := openSource()
			if err != nil {
				return err
			}
			defer exec.Close()

			position, err := exec.Position(cmd.Context())
			if err != nil {
				return err
			}

			if stored == "" {
				stored = "<none>"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:      %s\n", cfg.Config.State.Key)
			fmt.Fprintf(out, "stored:   %s\n", stored)
			fmt.Fprintf(out, "position: %s\n", position)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear the stored cursor so the next tick starts at the current position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := setup(); err != nil {
				return err
			}

			store, err := state.Open(cmd.Context(), &cfg.Config.State)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), cfg.Config.State.Key); err != nil {
				return err
			}

			log.Info().Str("key", cfg.Config.State.Key).Msg("Cursor reset")
			return nil
		},
	})

	return cmd
}
