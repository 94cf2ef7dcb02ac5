package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var unlinkClear bool

var linkCmd = &cobra.Command{
	Use:   "link <host> <template>",
	Short: "Link a template to a host and copy its web scenarios",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, svc, err := openService()
		if err != nil {
			return err
		}
		defer store.Close()

		host, err := resolveHost(ctx, store, args[0])
		if err != nil {
			return err
		}
		template, err := resolveHost(ctx, store, args[1])
		if err != nil {
			return err
		}

		report, err := svc.LinkTemplate(ctx, host.ID, template.ID)
		if err != nil {
			return fmt.Errorf("linking %s to %s: %w", template.Name, host.Name, err)
		}

		log.Info("Template linked",
			zap.String("host", host.Name),
			zap.String("template", template.Name),
			zap.Int("created", report.Created),
			zap.Int("adopted", report.Adopted),
			zap.Int("passes", report.Passes))
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <host> <template>",
	Short: "Remove a template link, keeping or clearing the inherited web scenarios",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, svc, err := openService()
		if err != nil {
			return err
		}
		defer store.Close()

		host, err := resolveHost(ctx, store, args[0])
		if err != nil {
			return err
		}
		template, err := resolveHost(ctx, store, args[1])
		if err != nil {
			return err
		}

		affected, err := svc.UnlinkTemplate(ctx, host.ID, template.ID, unlinkClear)
		if err != nil {
			return fmt.Errorf("unlinking %s from %s: %w", template.Name, host.Name, err)
		}

		log.Info("Template unlinked",
			zap.String("host", host.Name),
			zap.String("template", template.Name),
			zap.Bool("clear", unlinkClear),
			zap.Int("scenarios", affected))
		return nil
	},
}

var resyncCmd = &cobra.Command{
	Use:   "resync <template>",
	Short: "Propagate a template's web scenarios to every linked host again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, svc, err := openService()
		if err != nil {
			return err
		}
		defer store.Close()

		template, err := resolveHost(ctx, store, args[0])
		if err != nil {
			return err
		}

		report, err := svc.Resync(ctx, template.ID)
		if err != nil {
			return fmt.Errorf("resyncing %s: %w", template.Name, err)
		}

		log.Info("Template resynced",
			zap.String("template", template.Name),
			zap.Int("created", report.Created),
			zap.Int("updated", report.Updated),
			zap.Int("adopted", report.Adopted),
			zap.Int("unchanged", report.Unchanged),
			zap.Int("passes", report.Passes))
		return nil
	},
}

func init() {
	unlinkCmd.Flags().BoolVar(&unlinkClear, "clear", false, "delete the inherited web scenarios instead of keeping them")

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(resyncCmd)
}
