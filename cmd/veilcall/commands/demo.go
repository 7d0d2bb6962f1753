package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/veilcall"
	"github.com/opd-ai/veilcall/call"
	"github.com/opd-ai/veilcall/transport"
)

// demoCmd walks two in-process peers through a complete call without
// touching the network.
func demoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a complete two-peer call in process",
		RunE: func(cmd *cobra.Command, args []string) error {
			network := transport.NewMemoryNetwork()

			var alice, bob *veilcall.Client

			aliceDeliverer, err := network.Attach("alice.onion:9152", func(blob []byte) error {
				return alice.HandleInbound(blob)
			})
			if err != nil {
				return err
			}
			bobDeliverer, err := network.Attach("bob.onion:9152", func(blob []byte) error {
				return bob.HandleInbound(blob)
			})
			if err != nil {
				return err
			}

			aliceOpts := veilcall.NewOptions()
			aliceOpts.Deliverer = aliceDeliverer
			aliceOpts.VoiceAddress = "alice-voice.onion:9152"
			alice, err = veilcall.New(aliceOpts)
			if err != nil {
				return err
			}
			defer alice.Kill()

			bobOpts := veilcall.NewOptions()
			bobOpts.Deliverer = bobDeliverer
			bobOpts.VoiceAddress = "bob-voice.onion:9152"
			bob, err = veilcall.New(bobOpts)
			if err != nil {
				return err
			}
			defer bob.Kill()

			if err := alice.AddPeer(bob.SelfPublicKey(), "bob.onion:9152"); err != nil {
				return err
			}
			if err := bob.AddPeer(alice.SelfPublicKey(), "alice.onion:9152"); err != nil {
				return err
			}

			done := make(chan struct{})

			alice.OnCallStateChanged(func(callID string, state call.State) {
				fmt.Printf("alice: call %s -> %s\n", callID, state)
			})
			alice.OnCallEnded(func(callID string, reason call.EndReason) {
				fmt.Printf("alice: call %s ended (%s)\n", callID, reason.Code)
				close(done)
			})
			bob.OnCallStateChanged(func(callID string, state call.State) {
				fmt.Printf("bob: call %s -> %s\n", callID, state)
			})
			bob.OnCallEnded(func(callID string, reason call.EndReason) {
				fmt.Printf("bob: call %s ended (%s)\n", callID, reason.Code)
			})
			bob.OnIncomingCall(func(callID string, peerKey [32]byte) {
				fmt.Printf("bob: incoming call %s, answering\n", callID)
				go bob.AnswerCall(callID)
			})

			callID, err := alice.StartCall(bob.SelfPublicKey())
			if err != nil {
				return err
			}
			fmt.Printf("alice: calling bob (call %s)\n", callID)

			// Let the call sit active briefly, then hang up.
			deadline := time.After(10 * time.Second)
			for {
				_, state, ok := alice.ActiveCall()
				if ok && state == call.StateActive {
					break
				}
				select {
				case <-deadline:
					return fmt.Errorf("call never became active")
				case <-time.After(50 * time.Millisecond):
				}
			}

			fmt.Println("alice: hanging up")
			if err := alice.EndCall(); err != nil {
				return err
			}

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				return fmt.Errorf("call never finished")
			}
			return nil
		},
	}
	return cmd
}
