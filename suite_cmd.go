package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/suite"
)

func newSuiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Validate suite files and print their schema",
	}

	cmd.AddCommand(newSuiteValidateCmd())
	cmd.AddCommand(newSuiteSchemaCmd())
	cmd.AddCommand(newSuiteDefaultCmd())

	return cmd
}

func newSuiteValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "validate <file>",
		Short:       "Check a suite file without running it",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runSuiteValidate,
	}
}

func newSuiteSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "schema",
		Short:       "Print the JSON Schema of suite files",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := suite.GenerateJSONSchema()
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(append(data, '\n'))

			return err
		},
	}
}

func newSuiteDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "default",
		Short:       "Print the built-in suite as a starting point",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(suite.DefaultYAML())
			return err
		},
	}
}

func runSuiteValidate(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	st, err := suite.LoadFile(args[0])
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return encodeJSON(os.Stdout, map[string]any{"suite": st.Name, "cases": len(st.Cases), "valid": true})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: suite %q is valid (%d cases)\n", args[0], st.Name, len(st.Cases))

	return nil
}
