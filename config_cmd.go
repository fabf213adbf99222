package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	if cc.Cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if cc.Flags.JSON {
		return encodeJSON(os.Stdout, cc.Cfg)
	}

	return config.RenderEffective(cc.Cfg, os.Stdout)
}
