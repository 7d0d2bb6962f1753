package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/veilcall"
	"github.com/opd-ai/veilcall/call"
)

func listenCmd() *cobra.Command {
	var (
		listenAddr string
		proxyAddr  string
		voiceAddr  string
		autoAnswer bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Wait for incoming calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := veilcall.NewOptions()
			opts.ListenAddress = listenAddr
			opts.ProxyAddress = proxyAddr
			opts.VoiceAddress = voiceAddr

			client, err := veilcall.New(opts)
			if err != nil {
				return err
			}
			defer client.Kill()

			self := client.SelfPublicKey()
			fmt.Printf("listening on %s\n", listenAddr)
			fmt.Printf("identity: %s\n", hex.EncodeToString(self[:]))

			client.OnIncomingCall(func(callID string, peerKey [32]byte) {
				fmt.Printf("incoming call %s from %s\n", callID, hex.EncodeToString(peerKey[:8]))
				if autoAnswer {
					go client.AnswerCall(callID)
				}
			})
			client.OnCallStateChanged(func(callID string, state call.State) {
				fmt.Printf("call %s -> %s\n", callID, state)
			})
			client.OnCallEnded(func(callID string, reason call.EndReason) {
				fmt.Printf("call %s ended (%s)\n", callID, reason.Code)
			})

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			ticker := time.NewTicker(client.IterationInterval())
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					client.Iterate()
				case <-stop:
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9152", "signaling listen address")
	cmd.Flags().StringVar(&proxyAddr, "proxy", "127.0.0.1:9050", "SOCKS5 proxy address")
	cmd.Flags().StringVar(&voiceAddr, "voice", "", "advertised voice path address")
	cmd.Flags().BoolVar(&autoAnswer, "auto-answer", false, "answer incoming calls automatically")

	return cmd
}
