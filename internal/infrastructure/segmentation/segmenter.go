package segmentation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/readwise/internal/core/domain"
)

const (
	maxBoundaryLen = 100
	maxTitleLen    = 100
	minChunkLen    = 200

	fullTextTitle = "Full Text"
)

// Boundary patterns, checked in declared order. The numbered-prefix rule is
// the broadest and stays after the explicit chapter rule.
var boundaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^chapter\s+(?:\d+|[ivxlcdm]+|one|two|three|four|five|six|seven|eight|nine|ten)\b`),
	regexp.MustCompile(`^(?:\d+|[IVXLCDM]+|[ivxlcdm]+)\.\s+[A-Z]`),
	regexp.MustCompile(`(?i)^part\s+(?:\d+|[ivxlcdm]+|one|two|three)\b`),
}

var blankRun = regexp.MustCompile(`(?:\r?\n){3,}`)

type Segmenter struct{}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Segment splits raw text into ordered chapter units. It returns nothing only
// for empty input; any other input yields at least one unit.
func (s *Segmenter) Segment(raw string) []domain.ChapterUnit {
	if raw == "" {
		return nil
	}

	lines := strings.Split(raw, "\n")
	if units := splitOnBoundaries(lines); len(units) > 0 {
		return units
	}
	if units := splitOnBlankRuns(raw); len(units) >= 2 {
		return units
	}
	return []domain.ChapterUnit{{Index: 0, Title: fullTextTitle, Text: raw}}
}

// IsBoundary reports whether a stripped line opens a new chapter.
func IsBoundary(line string) bool {
	if line == "" || utf8.RuneCountInString(line) >= maxBoundaryLen {
		return false
	}
	for _, pattern := range boundaryPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

func splitOnBoundaries(lines []string) []domain.ChapterUnit {
	var starts []int
	for i, line := range lines {
		if IsBoundary(strings.TrimSpace(line)) {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}

	units := make([]domain.ChapterUnit, 0, len(starts))
	for n, start := range starts {
		end := len(lines)
		if n+1 < len(starts) {
			end = starts[n+1]
		}
		// Front matter before the first marker belongs to the first chapter.
		from := start
		if n == 0 {
			from = 0
		}
		units = append(units, domain.ChapterUnit{
			Index: n,
			Title: strings.TrimSpace(lines[start]),
			Text:  strings.Join(lines[from:end], "\n"),
		})
	}
	return units
}

func splitOnBlankRuns(raw string) []domain.ChapterUnit {
	var units []domain.ChapterUnit
	for _, chunk := range blankRun.Split(raw, -1) {
		chunk = strings.TrimSpace(chunk)
		if utf8.RuneCountInString(chunk) <= minChunkLen {
			continue
		}
		index := len(units)
		units = append(units, domain.ChapterUnit{
			Index: index,
			Title: chunkTitle(chunk, index),
			Text:  chunk,
		})
	}
	return units
}

func chunkTitle(chunk string, index int) string {
	first, _, _ := strings.Cut(chunk, "\n")
	first = strings.TrimSpace(first)
	if first != "" && utf8.RuneCountInString(first) < maxTitleLen {
		return first
	}
	return fmt.Sprintf("Section %d", index+1)
}
