package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	uasip "github.com/embeddedsip/uacore/pkg/sip"
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Listen for an incoming call, auto-answer it, and hold it until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}

		var mu sync.Mutex
		var active *uasip.Dialog
		var a *app

		setActive := func(d *uasip.Dialog) {
			mu.Lock()
			active = d
			mu.Unlock()
		}
		getActive := func() *uasip.Dialog {
			mu.Lock()
			defer mu.Unlock()
			return active
		}

		handler := uasip.Handler{
			OnIncomingCall: func(d *uasip.Dialog, from uasip.FromAddress) {
				fmt.Printf("incoming call from %s@%s\n", from.User, from.Host)
				if err := a.agent.AnswerCall(d); err != nil {
					fmt.Printf("answer failed: %v\n", err)
					return
				}
				setActive(d)
			},
			OnDialogStateChanged: func(d *uasip.Dialog, state uasip.DialogState) {
				fmt.Printf("call state: %s\n", state)
			},
			OnError: func(kind uasip.ErrorKind, message string) {
				fmt.Printf("agent error [%s]: %s\n", kind, message)
			},
		}

		a, err = newApp(cfg, handler)
		if err != nil {
			return err
		}
		defer a.agent.Close()

		ctx, cancel := interruptContext()
		defer cancel()

		if err := a.agent.Start(ctx); err != nil {
			return fmt.Errorf("starting agent: %w", err)
		}

		fmt.Println("waiting for an incoming call, press Ctrl+C to stop")
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if d := getActive(); d != nil {
					listenForHangup(ctx, a, d)
					return
				}
				time.Sleep(200 * time.Millisecond)
			}
		}()
		a.runLoop(ctx)

		if d := getActive(); d != nil && d.State() == uasip.DialogStateConfirmed {
			_ = a.agent.Hangup(d)
		}
		return a.agent.Stop(ctx)
	},
}
