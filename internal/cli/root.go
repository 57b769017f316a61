package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

// rootCmd mirrors firestige-Otus's cmd/root.go shape: a bare parent
// command whose persistent flags every subcommand inherits.
var rootCmd = &cobra.Command{
	Use:   "uacore",
	Short: "Reference SIP/media user-agent CLI built on pkg/sip and pkg/media",
	Long: `uacore drives a single SIP Agent through registration, outbound calls,
inbound-call answering and teardown, exercising the same create/open/loop
lifecycle an embedding application would.`,
}

// Execute adds all child commands and runs the root command. Called once
// from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	bindConfigFlags(rootCmd.PersistentFlags(), v)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(hangupCmd)
}
