package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// hangupCmd documents the interactive hangup verb: this core has no
// daemon/IPC layer a second process could use to address a running call
// (that coordination is explicitly out of scope, spec §1), so "hangup" is
// driven by typing the word at the terminal running `call` or `answer`,
// which calls Agent.Hangup on the active Dialog directly.
var hangupCmd = &cobra.Command{
	Use:   "hangup",
	Short: "Hang up the active call (type 'hangup' in a running call/answer session)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(`there is no standalone daemon to address: run "uacore call <uri>" or` +
			` "uacore answer" in a terminal and type "hangup" there to end the active call.`)
		return nil
	},
}
