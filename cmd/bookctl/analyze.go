package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/readwise/internal/bootstrap"
	"github.com/kirillkom/readwise/internal/config"
	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/usecase"
	"github.com/kirillkom/readwise/internal/infrastructure/resilience"
)

type analyzedChapter struct {
	Index    int             `json:"index"`
	Title    string          `json:"title"`
	Analysis domain.Analysis `json:"analysis"`
}

type analyzeReport struct {
	Title    string            `json:"title"`
	Chapters []analyzedChapter `json:"chapters"`
	Overview *domain.Analysis  `json:"overview,omitempty"`
}

func analyzeCmd(cfg config.Config) *cobra.Command {
	var provider string
	var overview bool
	var maxChapters int

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Run chapter analysis with the configured provider and print JSON; nothing is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider != "" {
				cfg.LLMProvider = strings.ToLower(provider)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			units, err := loadChapters(cmd, args[0])
			if err != nil {
				return err
			}
			if maxChapters > 0 && len(units) > maxChapters {
				units = units[:maxChapters]
			}

			model, err := bootstrap.NewAnalysisModel(cmd.Context(), cfg, resilience.NewExecutor(bootstrap.ResilienceConfig(cfg)))
			if err != nil {
				return err
			}
			analyzer := usecase.NewAnalyzer(model, cfg.AnalysisTimeout)

			title := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			report := analyzeReport{Title: title, Chapters: make([]analyzedChapter, 0, len(units))}
			var fullText strings.Builder
			for _, unit := range units {
				report.Chapters = append(report.Chapters, analyzedChapter{
					Index:    unit.Index,
					Title:    unit.Title,
					Analysis: analyzer.AnalyzeChapter(cmd.Context(), unit.Text, unit.Title),
				})
				fullText.WriteString(unit.Text)
				fullText.WriteString("\n\n")
			}
			if overview {
				result := analyzer.AggregateBook(cmd.Context(), fullText.String(), title)
				report.Overview = &result
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "override LLM_PROVIDER: ollama|openai|gemini|none")
	cmd.Flags().BoolVar(&overview, "overview", true, "also produce the book overview")
	cmd.Flags().IntVar(&maxChapters, "max-chapters", 0, "analyse only the first N chapters (0 = all)")
	return cmd
}
