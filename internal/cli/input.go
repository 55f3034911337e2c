package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

const (
	defaultEditor = "vim"
	quoteWidth    = 86
)

var errNoInput = errors.New("No input provided")

// quoteForEditor prefixes every line of content with "> ", wrapping each
// paragraph at quoteWidth columns. Blank lines stay as a bare quote marker.
func quoteForEditor(content string) string {
	var lines []string
	for _, paragraph := range strings.Split(content, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			lines = append(lines, "> ")
			continue
		}
		for _, line := range wrapText(paragraph, quoteWidth) {
			lines = append(lines, "> "+line)
		}
	}
	return strings.Join(lines, "\n")
}

// wrapText greedily fills lines up to width, splitting words longer than width
func wrapText(text string, width int) []string {
	var lines []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			lines = append(lines, string(current))
			current = current[:0]
		}
	}

	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			flush()
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(current) == 0:
			current = append(current, w...)
		case len(current)+1+len(w) <= width:
			current = append(current, ' ')
			current = append(current, w...)
		default:
			flush()
			current = append(current, w...)
		}
	}
	flush()
	return lines
}

// stripQuoted removes quoted lines and surrounding blank space
func stripQuoted(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// openEditor lets the user write in editor, starting from initial
func openEditor(ctx context.Context, editor, initial string) (string, error) {
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		parts = []string{defaultEditor}
	}

	f, err := os.CreateTemp("", "quinn-*.md")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(initial); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	args := append(parts[1:], path)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %s failed: %w", parts[0], err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read temp file: %w", err)
	}
	return stripQuoted(string(data)), nil
}

// acquireInput reads piped stdin, or opens the editor on a terminal
func (a *app) acquireInput(ctx context.Context, initial string) (string, error) {
	var text string
	if a.interactive {
		var err error
		if text, err = a.editor(ctx, initial); err != nil {
			return "", err
		}
	} else {
		data, err := io.ReadAll(a.in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}

	if strings.TrimSpace(text) == "" {
		return "", errNoInput
	}
	return text, nil
}
