package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nicebartender/claudio-bot/db"
	"github.com/nicebartender/claudio-bot/keylock"
	"github.com/nicebartender/claudio-bot/settings"
)

func newDumpCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [entity-id]",
		Short: "Print stored settings",
		Long: `Without an argument, lists every settings kind and the entities stored
under it. With a server or user id, prints every document stored for it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBPath == memoryDB {
				return fmt.Errorf("nothing to dump from an in-memory database")
			}
			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				kinds, err := database.Kinds(ctx)
				if err != nil {
					return err
				}
				if len(kinds) == 0 {
					fmt.Fprintln(out, "No settings stored.")
					return nil
				}
				for _, kind := range kinds {
					ids, err := database.Entities(ctx, kind)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s (%d)\n", kind, len(ids))
					for _, id := range ids {
						fmt.Fprintf(out, "  %d\n", id)
					}
				}
				return nil
			}

			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid entity id %q", args[0])
			}
			store := settings.New(database, nil, keylock.New[keylock.Key]())
			dump, err := store.Dump(ctx, id)
			if err != nil {
				return err
			}
			if dump == "" {
				fmt.Fprintf(out, "No settings stored for %d.\n", id)
				return nil
			}
			fmt.Fprint(out, dump)
			return nil
		},
	}
}
