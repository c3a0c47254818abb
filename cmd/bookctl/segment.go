package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/readwise/internal/infrastructure/segmentation"
)

func segmentCmd() *cobra.Command {
	var withText bool

	cmd := &cobra.Command{
		Use:   "segment <file>",
		Short: "Split a PDF or plain-text file into chapters and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := loadChapters(cmd, args[0])
			if err != nil {
				return err
			}
			if !withText {
				for i := range units {
					units[i].Text = preview(units[i].Text, 120)
				}
			}
			return printJSON(cmd, units)
		},
	}
	cmd.Flags().BoolVar(&withText, "text", false, "print full chapter text instead of a preview")
	return cmd
}

// loadChapters reads PDFs through the extractor and any other file as UTF-8
// text, then segments the result.
func loadChapters(cmd *cobra.Command, path string) ([]domain.ChapterUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(data)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = pdftext.NewExtractor().Extract(cmd.Context(), filepath.Base(path), data)
		if err != nil {
			return nil, err
		}
	}

	units := segmentation.NewSegmenter().Segment(text)
	if len(units) == 0 {
		return nil, fmt.Errorf("could not parse file or empty content: %s", path)
	}
	return units, nil
}

func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func printJSON(cmd *cobra.Command, payload any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
