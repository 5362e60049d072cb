package cmd

import (
	"fmt"

	"github.com/dativo-io/veil/internal/analyzer"
	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/config"
)

func buildAnalyzer(cfg *config.Config) (*analyzer.Engine, error) {
	eng, err := analyzer.NewEngine(cfg.AnalyzerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("building analyzer: %w", err)
	}
	return eng, nil
}

func buildAnonymizer(cfg *config.Config) *anonymizer.Engine {
	return anonymizer.New(cfg.AnonymizerOptions()...)
}
