package cli

import (
	"fmt"
	"strings"

	"github.com/emiago/sipgo/sip"
	"github.com/spf13/cobra"

	uasip "github.com/embeddedsip/uacore/pkg/sip"
)

var callCmd = &cobra.Command{
	Use:   "call <sip-uri>",
	Short: "Place an outbound call and hold it until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}

		var target sip.Uri
		if err := sip.ParseUri(args[0], &target); err != nil {
			return fmt.Errorf("parsing target uri: %w", err)
		}

		confirmed := make(chan struct{}, 1)
		handler := uasip.Handler{
			OnDialogStateChanged: func(d *uasip.Dialog, state uasip.DialogState) {
				fmt.Printf("call state: %s\n", state)
				if state == uasip.DialogStateConfirmed {
					select {
					case confirmed <- struct{}{}:
					default:
					}
				}
			},
			OnError: func(kind uasip.ErrorKind, message string) {
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

		dialog, err := a.agent.MakeCall(target)
		if err != nil {
			return fmt.Errorf("placing call: %w", err)
		}

		fmt.Println("calling, press Ctrl+C to hang up")
		go listenForHangup(ctx, a, dialog)
		a.runLoop(ctx)

		if dialog.State() == uasip.DialogStateConfirmed {
			_ = a.agent.Hangup(dialog)
		} else {
			_ = a.agent.CancelCall(dialog)
		}
		return a.agent.Stop(ctx)
	},
}

// listenForHangup watches stdin for the literal line "hangup", the
// interactive counterpart to the standalone hangup subcommand: this core
// has no daemon/IPC layer to address a call from a second process, so the
// hangup verb is exercised inline against the call/answer commands'
// own Dialog.
func listenForHangup(ctxDone interface{ Done() <-chan struct{} }, a *app, d *uasip.Dialog) {
	line := make(chan string)
	go func() {
		var s string
		for {
			if _, err := fmt.Scanln(&s); err != nil {
				return
			}
			line <- s
		}
	}()
	for {
		select {
		case <-ctxDone.Done():
			return
		case s := <-line:
			if strings.EqualFold(s, "hangup") {
				_ = a.agent.Hangup(d)
				return
			}
		}
	}
}
