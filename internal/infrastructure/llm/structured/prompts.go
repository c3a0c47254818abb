package structured

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type promptSource struct {
	ChapterSystem string `yaml:"chapter_system"`
	ChapterUser   string `yaml:"chapter_user"`
	BookSystem    string `yaml:"book_system"`
	BookUser      string `yaml:"book_user"`
}

// Prompts holds the parsed chapter and book prompt templates. User templates
// see .Title and .Text.
type Prompts struct {
	chapterSystem string
	bookSystem    string
	chapterUser   *template.Template
	bookUser      *template.Template
}

type promptData struct {
	Title string
	Text  string
}

func DefaultPrompts() (*Prompts, error) {
	var src promptSource
	if err := yaml.Unmarshal(defaultPromptsYAML, &src); err != nil {
		return nil, fmt.Errorf("parse default prompts: %w", err)
	}
	return compilePrompts(src)
}

// LoadPrompts overlays the keys present in the YAML file at path on the
// built-in prompts. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	var src promptSource
	if err := yaml.Unmarshal(defaultPromptsYAML, &src); err != nil {
		return nil, fmt.Errorf("parse default prompts: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return compilePrompts(src)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var override promptSource
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	overlay(&src.ChapterSystem, override.ChapterSystem)
	overlay(&src.ChapterUser, override.ChapterUser)
	overlay(&src.BookSystem, override.BookSystem)
	overlay(&src.BookUser, override.BookUser)
	return compilePrompts(src)
}

func overlay(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}

func compilePrompts(src promptSource) (*Prompts, error) {
	chapterUser, err := template.New("chapter_user").Option("missingkey=error").Parse(src.ChapterUser)
	if err != nil {
		return nil, fmt.Errorf("parse chapter prompt: %w", err)
	}
	bookUser, err := template.New("book_user").Option("missingkey=error").Parse(src.BookUser)
	if err != nil {
		return nil, fmt.Errorf("parse book prompt: %w", err)
	}
	return &Prompts{
		chapterSystem: strings.TrimSpace(src.ChapterSystem),
		bookSystem:    strings.TrimSpace(src.BookSystem),
		chapterUser:   chapterUser,
		bookUser:      bookUser,
	}, nil
}

func render(tmpl *template.Template, title, text string) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, promptData{Title: title, Text: text}); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
