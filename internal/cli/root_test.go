package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "quinn version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "think through problems")
		assert.Contains(t, helpText, "claude-sonnet-4")
		assert.Contains(t, helpText, "--reset-all")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)

		assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
		assert.NotNil(t, cmd.PersistentFlags().Lookup("debug-modules"))
	})

	t.Run("chat flags", func(t *testing.T) {
		cmd := GetRootCmd()

		for name, short := range map[string]string{"new": "n", "list": "l", "continue": "c", "model": "m"} {
			f := cmd.Flags().Lookup(name)
			require.NotNil(t, f, name)
			assert.Equal(t, short, f.Shorthand)
		}
		assert.Equal(t, "claude-sonnet-4", cmd.Flags().Lookup("model").DefValue)
		assert.Equal(t, "0", cmd.Flags().Lookup("continue").NoOptDefVal)
		assert.NotNil(t, cmd.Flags().Lookup("reset-all"))
	})

	t.Run("subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "status", "stop", "prompt", "mcp"} {
			assert.True(t, names[want], "%s command should exist", want)
		}
	})
}

func TestContinueTarget(t *testing.T) {
	newCmd := func(t *testing.T, args ...string) (*cobra.Command, []string) {
		t.Helper()
		var idx int
		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().IntVarP(&idx, "continue", "c", 0, "")
		cmd.Flags().Lookup("continue").NoOptDefVal = "0"
		require.NoError(t, cmd.Flags().Parse(args))
		continueIndex = idx
		return cmd, cmd.Flags().Args()
	}

	tests := []struct {
		name       string
		args       []string
		want       int
		continuing bool
		wantErr    bool
	}{
		{"not set", nil, 0, false, false},
		{"bare flag", []string{"-c"}, 0, true, false},
		{"separate number", []string{"-c", "2"}, 2, true, false},
		{"attached number", []string{"--continue=3"}, 3, true, false},
		{"bad number", []string{"-c", "two"}, 0, false, true},
		{"stray argument", []string{"hello"}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := newCmd(t, tt.args...)
			got, continuing, err := continueTarget(cmd, args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.continuing, continuing)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDebugModules(t *testing.T) {
	assert.Nil(t, parseDebugModules(""))
	assert.Equal(t, []string{"agent", "store"}, parseDebugModules(" agent, ,store "))
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
