package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recordimages/internal/images"
)

func newPurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <record-id>",
		Short: "Remove every image stored for a record",
		Long: `Removes the originals, cached variants and the directory of a record.
The database row is left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			pub, err := a.publisher()
			if err != nil {
				return err
			}
			if pub != nil {
				defer pub.Close()
			}
			b, err := a.behavior(pub)
			if err != nil {
				return err
			}

			att, err := b.For(images.Key(args[0]))
			if err != nil {
				return err
			}
			if err := att.Cleanup(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "purged", att.DirectoryPath(false))
			return nil
		},
	}
}
