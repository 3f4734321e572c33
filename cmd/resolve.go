package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recordimages/internal/images"
)

func newResolveCmd(configPath *string) *cobra.Command {
	var v images.Variant

	cmd := &cobra.Command{
		Use:   "resolve <record-id> <name>",
		Short: "Print the web link of an image, generating the variant if needed",
		Example: `  recordimages resolve 42 avatar
  recordimages resolve 42 gallery_2 --width 200 --height 200 --stretch`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			b, err := a.behavior(nil)
			if err != nil {
				return err
			}

			att, err := b.For(images.Key(args[0]))
			if err != nil {
				return err
			}
			link, ok, err := att.Resolve(cmd.Context(), args[1], v)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no image %q for record %s", args[1], args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	cmd.Flags().IntVar(&v.Width, "width", 0, "Variant width")
	cmd.Flags().IntVar(&v.Height, "height", 0, "Variant height")
	cmd.Flags().BoolVar(&v.Stretch, "stretch", false, "Pad the variant to exactly width x height")
	return cmd
}
