package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexdong/quinn/pkg/conversation"
)

const version = "0.1.0"

var (
	cfgFile      string
	logLevel     string
	debug        bool
	debugModules string

	newConversation   bool
	listConversations bool
	continueIndex     int
	modelName         string
	resetAll          bool
	assumeYes         bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quinn",
	Short: "Quinn - AI rubber duck for guided problem-solving",
	Long: fmt.Sprintf(`Quinn helps you think through problems via back-and-forth discussion.
Input comes from a pipe or your $EDITOR; replies are kept in a local SQLite database.

Available models: %s`, strings.Join(conversation.AvailableModels(), ", ")),
	Example: `  quinn              # Continue or start new
  quinn -n           # Start a new conversation
  quinn -c           # Continue most recent
  quinn -c 1         # Continue conversation #1
  quinn -l           # List all conversations
  quinn --reset-all  # Delete everything and start fresh
  echo "Why is my build slow?" | quinn -n`,
	Version:       version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.quinn/quinn.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&debugModules, "debug-modules", "", "comma-separated modules for debug logging")

	flags := rootCmd.Flags()
	flags.BoolVarP(&newConversation, "new", "n", false, "start a new conversation")
	flags.BoolVarP(&listConversations, "list", "l", false, "list all conversations")
	flags.IntVarP(&continueIndex, "continue", "c", 0, "continue conversation N from the list (most recent when N is omitted)")
	flags.Lookup("continue").NoOptDefVal = "0"
	flags.StringVarP(&modelName, "model", "m", conversation.DefaultModel, "LLM model to use")
	flags.BoolVar(&resetAll, "reset-all", false, "delete all conversations and start fresh")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "skip confirmation prompts")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// parseDebugModules splits a comma separated module list
func parseDebugModules(mods string) []string {
	var out []string
	for _, m := range strings.Split(mods, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// continueTarget resolves -c. "-c 2" leaves 2 as a positional argument
// because the flag value is optional.
func continueTarget(cmd *cobra.Command, args []string) (int, bool, error) {
	if !cmd.Flags().Changed("continue") {
		if len(args) > 0 {
			return 0, false, fmt.Errorf("unexpected argument %q", args[0])
		}
		return 0, false, nil
	}
	if len(args) == 0 {
		return continueIndex, true, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("invalid conversation number %q", args[0])
	}
	return n, true, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	target, continuing, err := continueTarget(cmd, args)
	if err != nil {
		return err
	}

	// Validate model early
	if _, err := conversation.ModelConfig(modelName); err != nil {
		return err
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	switch {
	case resetAll:
		return a.resetAll(ctx, assumeYes)
	case listConversations:
		return a.listConversations(ctx)
	case continuing:
		return a.continueConversation(ctx, target, modelName)
	case newConversation:
		return a.newConversation(ctx, modelName)
	default:
		return a.defaultAction(ctx, modelName)
	}
}
