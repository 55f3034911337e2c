package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexdong/quinn/pkg/agent"
)

var promptSaveVersion string

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage versioned system prompts",
	Long: `Manage the versioned system prompts kept in the prompts directory.
Versions are named vYYMMDD-HHMMSS; "latest" reads system.txt.`,
}

var promptShowCmd = &cobra.Command{
	Use:   "show [version]",
	Short: "Print a system prompt (default: the configured version)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPromptShow,
}

var promptSaveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Save a file as a new prompt version",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptSave,
}

var promptVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List saved prompt versions, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runPromptVersions,
}

var promptCurrentVersionCmd = &cobra.Command{
	Use:   "current-version",
	Short: "Print the version a prompt saved now would get",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), agent.CurrentPromptVersion(time.Now()))
		return nil
	},
}

func init() {
	promptSaveCmd.Flags().StringVar(&promptSaveVersion, "as", "", "version to save as (default: current time)")

	promptCmd.AddCommand(promptShowCmd, promptSaveCmd, promptVersionsCmd, promptCurrentVersionCmd)
	rootCmd.AddCommand(promptCmd)
}

func promptStore(cmd *cobra.Command) (*agent.PromptStore, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	return agent.NewPromptStore(cfg.Prompts.Dir), cfg.Prompts.Version, nil
}

func runPromptShow(cmd *cobra.Command, args []string) error {
	store, version, err := promptStore(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		version = args[0]
	}

	prompt, err := store.Load(version)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return nil
}

func runPromptSave(cmd *cobra.Command, args []string) error {
	store, _, err := promptStore(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}

	version := promptSaveVersion
	if version == "" {
		version = agent.CurrentPromptVersion(time.Now())
	}
	if err := store.Save(version, strings.TrimSpace(string(data))); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved prompt version %s\n", version)
	return nil
}

func runPromptVersions(cmd *cobra.Command, args []string) error {
	store, _, err := promptStore(cmd)
	if err != nil {
		return err
	}

	versions, err := store.Versions()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "No saved prompt versions")
		return nil
	}
	for _, v := range versions {
		fmt.Fprintln(out, v)
	}
	return nil
}
