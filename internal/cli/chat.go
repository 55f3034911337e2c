package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/pterm/pterm"

	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
)

const renderWidth = 88

var (
	userTitle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	userPanel      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
	assistantPanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("10")).
			Padding(0, 1)
	metaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func (a *app) newConversation(ctx context.Context, model string) error {
	input, err := a.acquireInput(ctx, "")
	if err != nil {
		return err
	}

	ctx = conversation.WithChannel(ctx, "cli")
	result, err := a.generate(func() (*conversation.Result, error) {
		return a.manager.CreateNew(ctx, conversation.CLIUserID, input, model)
	})
	if err != nil {
		return err
	}
	a.display(result.Message)
	return nil
}

// continueConversation continues the index-th listed conversation; 0 picks
// the most recent one
func (a *app) continueConversation(ctx context.Context, index int, model string) error {
	var (
		conv *models.Conversation
		err  error
	)
	if index == 0 {
		conv, err = a.manager.MostRecent(ctx, conversation.CLIUserID)
	} else {
		conv, err = a.manager.ConversationByIndex(ctx, conversation.CLIUserID, index)
	}
	if err != nil {
		return err
	}
	if conv == nil {
		if index == 0 {
			return fmt.Errorf("no conversations to continue")
		}
		return fmt.Errorf("conversation %d not found", index)
	}
	return a.continueWith(ctx, conv, model)
}

func (a *app) continueWith(ctx context.Context, conv *models.Conversation, model string) error {
	last, err := a.manager.LastAssistantMessage(ctx, conv.ID)
	if err != nil {
		return err
	}
	initial := ""
	if last != "" {
		initial = quoteForEditor(last) + "\n\n"
	}

	input, err := a.acquireInput(ctx, initial)
	if err != nil {
		return err
	}

	ctx = conversation.WithChannel(ctx, "cli")
	result, err := a.generate(func() (*conversation.Result, error) {
		return a.manager.Continue(ctx, conv.ID, conversation.CLIUserID, input, model)
	})
	if err != nil {
		return err
	}
	a.display(result.Message)
	return nil
}

// defaultAction offers to resume the most recent conversation on a terminal,
// otherwise starts a new one
func (a *app) defaultAction(ctx context.Context, model string) error {
	if a.interactive {
		recent, err := a.manager.MostRecent(ctx, conversation.CLIUserID)
		if err != nil {
			return err
		}
		if recent != nil {
			ok, err := a.confirm(fmt.Sprintf("Continue most recent conversation '%s'?", recent.Title), true)
			if err != nil {
				return err
			}
			if ok {
				return a.continueWith(ctx, recent, model)
			}
		}
	}
	return a.newConversation(ctx, model)
}

// generate runs fn behind a spinner on a terminal
func (a *app) generate(fn func() (*conversation.Result, error)) (*conversation.Result, error) {
	if !a.interactive {
		return fn()
	}
	spinner, err := pterm.DefaultSpinner.Start("Generating response...")
	if err != nil {
		return fn()
	}
	result, err := fn()
	_ = spinner.Stop()
	return result, err
}

// confirm asks a yes/no question. Piped input answers with a line.
func (a *app) confirm(question string, def bool) (bool, error) {
	if a.interactive {
		return pterm.DefaultInteractiveConfirm.WithDefaultValue(def).Show(question)
	}

	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(a.out, "%s %s ", question, hint)

	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return def, nil
}

func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// formatMetadata summarises a reply's usage on one line
func formatMetadata(msg *models.Message) string {
	if msg.Metadata == nil {
		return fmt.Sprintf("Conversation: %s", msg.ConversationID)
	}
	m := msg.Metadata
	version := m.PromptVersion
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("Tokens: %d | Cost: $%.6f | Time: %dms | Model: %s | Prompt: %s | Conversation: %s",
		m.TokensUsed, m.CostUSD, m.ResponseTimeMs, m.ModelUsed, version, msg.ConversationID)
}

func (a *app) display(msg *models.Message) {
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, userTitle.Render("Your Input"))
	fmt.Fprintln(a.out, userPanel.Render(msg.UserContent))
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, assistantTitle.Render("Quinn's Response"))
	fmt.Fprintln(a.out, assistantPanel.Render(renderMarkdown(msg.AssistantContent)))
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, metaStyle.Render(formatMetadata(msg)))
}
