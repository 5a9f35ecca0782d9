package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	similarity "github.com/ssciwr/similarity-client-go"
)

type status struct {
	OK bool `json:"ok"`
}

func (c *cli) addCommands(root *cobra.Command) {
	root.AddCommand(
		c.listCmd(),
		c.infoCmd(),
		c.createCmd(),
		c.renameCmd(),
		c.deleteCmd(),
		c.uploadCmd(),
		c.refreshCmd(),
		c.searchCmd(),
		c.finetuneCmd(),
		c.verifyCmd(),
	)
}

func (c *cli) listCmd() *cobra.Command {
	var names bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collection ids",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&names, "options", false, "Print id/name pairs instead of bare ids")
	cmd.RunE = c.run(func(ctx context.Context, client similarity.Client, _ string) (interface{}, error) {
		if names {
			return client.CollectionOptions(ctx)
		}
		return client.ListCollections(ctx)
	})
	return cmd
}

func (c *cli) infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <id>",
		Short: "Show collection metadata",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, _ string) (interface{}, error) {
			return client.GetCollection(ctx, args[0])
		})(cmd, args)
	}
	return cmd
}

func (c *cli) createCmd() *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&tag, "tag", "", "HeidICON tag to import content from")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
			return client.CreateDataset(ctx, args[0], tag, key)
		})(cmd, args)
	}
	return cmd
}

func (c *cli) renameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a collection",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
			return status{OK: true}, client.ChangeDatasetName(ctx, args[0], args[1], key)
		})(cmd, args)
	}
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a collection",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
			return status{OK: true}, client.DeleteDataset(ctx, args[0], key)
		})(cmd, args)
	}
	return cmd
}

func (c *cli) uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <id> <file.csv>",
		Short: "Replace collection content with a CSV file of image URLs",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
			f, err := os.Open(args[1])
			if err != nil {
				return nil, errors.Wrap(err, "error opening CSV file")
			}
			defer func() { _ = f.Close() }()
			return status{OK: true}, client.UploadCSVFile(ctx, args[0], f, key)
		})(cmd, args)
	}
	return cmd
}

func (c *cli) refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <id>",
		Short: "Reload collection content from its HeidICON tag",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
			return status{OK: true}, client.UpdateHeidicon(ctx, args[0], key)
		})(cmd, args)
	}
	return cmd
}

func (c *cli) searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <id> <image>",
		Short: "Find images in a collection similar to a local image",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
			image, err := os.ReadFile(args[1])
			if err != nil {
				return nil, errors.Wrap(err, "error reading image")
			}
			var opts []similarity.SearchOption
			if limit > 0 {
				opts = append(opts, similarity.WithSearchLimit(limit))
			}
			return client.SimilaritySearch(ctx, args[0], image, key, opts...)
		})(cmd, args)
	}
	return cmd
}

func (c *cli) finetuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finetune <id>",
		Short: "Fine-tune the model on a collection",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
			return status{OK: true}, client.FinetuneModel(ctx, args[0], key)
		})(cmd, args)
	}
	return cmd
}

func (c *cli) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check whether the API key is accepted",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = c.run(func(ctx context.Context, client similarity.Client, key string) (interface{}, error) {
		v, err := client.VerifyAPIKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if !v.Valid {
			return v, errors.New("API key was rejected")
		}
		return v, nil
	})
	return cmd
}
