// Command uacore is a reference front end over pkg/sip, pkg/media and
// pkg/transport: a thin cobra/viper CLI that drives one Agent through the
// register/call/answer/hangup lifecycle described in spec §4.3 and §4.4,
// mirroring how the teacher's cmd/test_sip exercises its own stack.
package main

import (
	"fmt"
	"os"

	"github.com/embeddedsip/uacore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
