package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// completionCommand emits cobra's generated completion script for the
// requested shell on stdout.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate a completion script for quarry and print it to stdout.

Load it into the current shell:

  $ source <(quarry completion bash)
  $ quarry completion fish | source

Or install it permanently:

  $ quarry completion bash > /etc/bash_completion.d/quarry
  $ quarry completion zsh  > "${fpath[1]}/_quarry"
  $ quarry completion fish > ~/.config/fish/completions/quarry.fish
  PS> quarry completion powershell > quarry.ps1  # dot-source from $PROFILE
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
}
