package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
)

const (
	titleMaxLength      = 50
	titleTruncateLength = 47
)

func truncateTitle(title string) string {
	if title == "" {
		return "Untitled"
	}
	r := []rune(title)
	if len(r) > titleMaxLength {
		return string(r[:titleTruncateLength]) + "..."
	}
	return title
}

// conversationTable builds the list rows, numbered from 1 as -c expects
func conversationTable(convs []*models.Conversation) pterm.TableData {
	data := pterm.TableData{{"#", "Title", "Messages", "Total Cost", "Status", "Updated"}}
	for i, c := range convs {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			truncateTitle(c.Title),
			strconv.Itoa(c.MessageCount),
			fmt.Sprintf("$%.6f", c.TotalCost),
			c.Status,
			c.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return data
}

func (a *app) listConversations(ctx context.Context) error {
	convs, err := a.manager.ListConversations(ctx, conversation.CLIUserID)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprint(a.out, pterm.Warning.Sprintln("No conversations found."))
		return nil
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(conversationTable(convs)).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Fprintln(a.out, table)
	return nil
}

func (a *app) resetAll(ctx context.Context, yes bool) error {
	if !yes {
		ok, err := a.confirm("Delete all conversations and start fresh?", false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprint(a.out, pterm.Info.Sprintln("Reset cancelled."))
			return nil
		}
	}

	if err := a.manager.ResetAll(ctx); err != nil {
		return fmt.Errorf("failed to reset conversations: %w", err)
	}
	fmt.Fprint(a.out, pterm.Success.Sprintln("All conversations reset."))
	return nil
}
