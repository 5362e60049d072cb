package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/auditlog"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/pipeline"
)

var (
	anonLanguage    string
	anonMethod      string
	anonMaskingChar string
	anonCharsToMask int
	anonFromEnd     bool
	anonAudit       bool

	analyzeLanguage string
)

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize [text]",
	Short: "Anonymize text from the arguments or stdin and print the JSON result",
	Example: `  veil anonymize "My SSN is 123-45-6789" --chars-to-mask 4 --from-end
  cat notes.txt | veil anonymize --method replace`,
	RunE: runAnonymize,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Print the entities detected in text without changing it",
	RunE:  runAnalyze,
}

func init() {
	anonymizeCmd.Flags().StringVar(&anonLanguage, "language", pipeline.DefaultLanguage, "language code for analysis")
	anonymizeCmd.Flags().StringVar(&anonMethod, "method", pipeline.DefaultMethod, "anonymization method (mask, redact, replace, hash, keep, encrypt)")
	anonymizeCmd.Flags().StringVar(&anonMaskingChar, "masking-char", pipeline.DefaultMaskingChar, "character used for masking")
	anonymizeCmd.Flags().IntVar(&anonCharsToMask, "chars-to-mask", pipeline.DefaultCharsToMask, "number of characters to mask")
	anonymizeCmd.Flags().BoolVar(&anonFromEnd, "from-end", pipeline.DefaultFromEnd, "mask from the end of each entity")
	anonymizeCmd.Flags().BoolVar(&anonAudit, "audit", false, "append the transformation to the audit log")
	rootCmd.AddCommand(anonymizeCmd)

	analyzeCmd.Flags().StringVar(&analyzeLanguage, "language", pipeline.DefaultLanguage, "language code for analysis")
	rootCmd.AddCommand(analyzeCmd)
}

// inputText joins args, or reads all of stdin when there are none.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "anonymize")
	defer span.End()

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	eng, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}

	var rec pipeline.Recorder
	if anonAudit {
		audit, err := auditlog.Open(cfg.LogFile, cfg.AuditFormat, cfg.AuditOptions()...)
		if err != nil {
			return fmt.Errorf("initializing audit log: %w", err)
		}
		defer audit.Close()
		rec = audit
	}

	req := pipeline.NewRequest(text)
	req.Language = anonLanguage
	req.Method = anonMethod
	req.MaskingChar = anonMaskingChar
	req.CharsToMask = anonCharsToMask
	req.FromEnd = anonFromEnd

	resp, err := pipeline.New(eng, buildAnonymizer(cfg), rec).Anonymize(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "analyze")
	defer span.End()

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	eng, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}

	results, err := pipeline.New(eng, buildAnonymizer(cfg), nil).Analyze(ctx, text, analyzeLanguage)
	if err != nil {
		return err
	}
	type finding struct {
		EntityType string  `json:"entity_type"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Score      float64 `json:"score"`
		Text       string  `json:"text"`
		Recognizer string  `json:"recognizer"`
	}
	out := make([]finding, 0, len(results))
	for _, r := range results {
		out = append(out, finding{
			EntityType: r.EntityType,
			Start:      r.Start,
			End:        r.End,
			Score:      r.Score,
			Text:       text[r.Start:r.End],
			Recognizer: r.RecognizerName,
		})
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
