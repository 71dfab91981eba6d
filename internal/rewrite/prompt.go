package rewrite

import (
	"fmt"
	"strings"
	"text/template"
)

// Prompter renders the instruction sent to the rewriting backend.
// Templates see {{.Tone}} and {{.Text}}.
type Prompter struct {
	tmpl *template.Template
}

func NewPrompter(text string) (*Prompter, error) {
	tmpl, err := template.New("rewrite").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Prompter{tmpl: tmpl}, nil
}

func (p *Prompter) Build(tone, text string) (string, error) {
	var sb strings.Builder
	data := struct {
		Tone string
		Text string
	}{Tone: tone, Text: text}
	if err := p.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
