package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Azhovan/armature"
	"github.com/Azhovan/armature/calc"
	"github.com/Azhovan/armature/sourceenv"
	"github.com/Azhovan/armature/sourcefile"
)

func newRootCommand(version string) *cobra.Command {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "armature",
		Short:         "Inspect component configuration sources",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newEventsCommand(&jsonOutput))
	rootCmd.AddCommand(newEnvCommand(&jsonOutput))
	rootCmd.AddCommand(newEvalCommand())
	return rootCmd
}

func newEventsCommand(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "events FILE...",
		Short: "Print the assignments decoded from configuration files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var all []armature.Event
			for _, path := range args {
				events, err := sourcefile.New(path, sourcefile.Options{Required: true}).Load(cmd.Context())
				if err != nil {
					return err
				}
				log.Debug().Str("file", path).Int("events", len(events)).Msg("file decoded")
				all = append(all, events...)
			}
			return printEvents(cmd.OutOrStdout(), all, *jsonOutput)
		},
	}
}

func newEnvCommand(jsonOutput *bool) *cobra.Command {
	var opts sourceenv.Options

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the assignments decoded from environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := sourceenv.New(opts).Load(cmd.Context())
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), events, *jsonOutput)
		},
	}
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "only variables starting with this prefix")
	cmd.Flags().BoolVar(&opts.CaseSensitive, "case-sensitive", false, "match the prefix case-sensitively")
	return cmd
}

func newEvalCommand() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "eval EXPR",
		Short: "Evaluate an expression against the keys of configuration files",
		Long: `Evaluate an HCL expression. Every key decoded from --file is a name the
expression can refer to, and configuration values may themselves be templates.

  armature eval --file gallery.yaml 'gallery.shape.size * 2'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := calc.NewModel()
			for _, path := range files {
				events, err := sourcefile.New(path, sourcefile.Options{Required: true}).Load(cmd.Context())
				if err != nil {
					return err
				}
				for _, e := range events {
					if err := model.Assign(e.Path(), e.Value); err != nil {
						return fmt.Errorf("%s: %w", e.Origin, err)
					}
				}
			}

			n, err := calc.ParseExpression("eval", args[0], model)
			if err != nil {
				return err
			}
			v, err := n.Value()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "configuration file (repeatable)")
	return cmd
}

type eventView struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Origin string `json:"origin"`
}

func printEvents(w io.Writer, events []armature.Event, asJSON bool) error {
	if asJSON {
		views := make([]eventView, len(events))
		for i, e := range events {
			views[i] = eventView{Key: e.Path(), Value: e.Value, Origin: e.Origin.String()}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	for _, e := range events {
		if _, err := fmt.Fprintf(w, "%s = %v (%s)\n", e.Path(), e.Value, e.Origin); err != nil {
			return err
		}
	}
	return nil
}
