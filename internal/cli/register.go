package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embeddedsip/uacore/pkg/sip"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register with the SIP registrar and hold the registration until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		if cfg.Registrar == "" {
			return fmt.Errorf("--registrar (or --domain) is required")
		}

		handler := sip.Handler{
			OnRegisterResult: func(success bool, status int) {
				if success {
					fmt.Printf("registered (status %d)\n", status)
				} else {
					fmt.Printf("registration failed (status %d)\n", status)
				}
			},
			OnError: func(kind sip.ErrorKind, message string) {
				fmt.Printf("agent error [%s]: %s\n", kind, message)
			},
		}

		a, err := newApp(cfg, handler)
		if err != nil {
			return err
		}
		defer a.agent.Close()

		ctx, cancel := interruptContext()
		defer cancel()

		if err := a.agent.Start(ctx); err != nil {
			return fmt.Errorf("starting agent: %w", err)
		}
		fmt.Println("registering, press Ctrl+C to stop")
		a.runLoop(ctx)
		return a.agent.Stop(ctx)
	},
}
