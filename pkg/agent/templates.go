package agent

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/models"
)

//go:embed templates/*
var embeddedTemplates embed.FS

const (
	initialTemplate    = "initial_prompt.tmpl"
	subsequentTemplate = "subsequent_prompt.tmpl"
	guidanceFile       = "guidance.txt"
)

// Renderer builds the user-facing LLM prompts. Files in the override
// directory take precedence over the embedded defaults.
type Renderer struct {
	overrideDir string
}

// NewRenderer creates a renderer; overrideDir may be empty
func NewRenderer(overrideDir string) *Renderer {
	return &Renderer{overrideDir: overrideDir}
}

func (r *Renderer) read(name string) (string, error) {
	if r.overrideDir != "" {
		data, err := os.ReadFile(filepath.Join(r.overrideDir, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "read template %s", name)
		}
	}
	data, err := embeddedTemplates.ReadFile("templates/" + name)
	if err != nil {
		return "", errors.Wrapf(err, "read embedded template %s", name)
	}
	return string(data), nil
}

func (r *Renderer) render(name string, data any) (string, error) {
	text, err := r.read(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parse template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render template %s", name)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Guidance returns the shared guidance text
func (r *Renderer) Guidance() (string, error) {
	g, err := r.read(guidanceFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(g), nil
}

// RenderInitial renders the prompt that opens a conversation
func (r *Renderer) RenderInitial(problem string) (string, error) {
	if strings.TrimSpace(problem) == "" {
		return "", invalidInput("User problem cannot be empty")
	}
	guidance, err := r.Guidance()
	if err != nil {
		return "", err
	}
	return r.render(initialTemplate, struct {
		Guidance string
		Problem  string
	}{guidance, problem})
}

// RenderSubsequent renders a follow-up prompt from the stored history and the new input
func (r *Renderer) RenderSubsequent(history []models.Message, newInput string) (string, error) {
	if len(history) == 0 {
		return "", invalidInput("Conversation must have messages")
	}
	guidance, err := r.Guidance()
	if err != nil {
		return "", err
	}
	return r.render(subsequentTemplate, struct {
		Guidance string
		History  string
		NewInput string
	}{guidance, FormatConversationHistory(history), newInput})
}

// FormatConversationHistory lays out each exchange as User/Assistant lines
// followed by a separator
func FormatConversationHistory(history []models.Message) string {
	if len(history) == 0 {
		return ""
	}
	parts := make([]string, 0, len(history)*3)
	for _, msg := range history {
		parts = append(parts,
			"User: "+msg.UserContent,
			"Assistant: "+msg.AssistantContent,
			"-------\n\n",
		)
	}
	return strings.Join(parts, "\n")
}
