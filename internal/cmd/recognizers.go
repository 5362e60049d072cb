package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/config"
)

var (
	recognizersLanguage string
	recognizersJSON     bool
)

var recognizersCmd = &cobra.Command{
	Use:   "recognizers",
	Short: "List active recognizers, or the entity types served for a language",
	RunE:  runRecognizers,
}

func init() {
	recognizersCmd.Flags().StringVar(&recognizersLanguage, "language", "", "list entity types supported for this language instead")
	recognizersCmd.Flags().BoolVar(&recognizersJSON, "json", false, "print JSON")
	rootCmd.AddCommand(recognizersCmd)
}

func runRecognizers(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	eng, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if recognizersLanguage != "" {
		entities, err := eng.SupportedEntities(recognizersLanguage)
		if err != nil {
			return err
		}
		if recognizersJSON {
			return printJSON(out, entities)
		}
		for _, e := range entities {
			fmt.Fprintln(out, e)
		}
		return nil
	}

	infos := eng.Recognizers()
	if recognizersJSON {
		return printJSON(out, infos)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENTITY\tPATTERNS\tLANGUAGES\tVALIDATOR")
	for _, r := range infos {
		langs := "all"
		if len(r.Languages) > 0 {
			langs = strings.Join(r.Languages, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\n", r.Name, r.Entity, r.Patterns, langs, r.Validator)
	}
	return tw.Flush()
}
