package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/veilcall"
	"github.com/opd-ai/veilcall/call"
)

func callCmd() *cobra.Command {
	var (
		listenAddr string
		proxyAddr  string
		voiceAddr  string
		peerKeyHex string
		peerAddr   string
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place a call to a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			peerKey, err := parseKey(peerKeyHex)
			if err != nil {
				return err
			}

			opts := veilcall.NewOptions()
			opts.ListenAddress = listenAddr
			opts.ProxyAddress = proxyAddr
			opts.VoiceAddress = voiceAddr

			client, err := veilcall.New(opts)
			if err != nil {
				return err
			}
			defer client.Kill()

			if err := client.AddPeer(peerKey, peerAddr); err != nil {
				return err
			}

			ended := make(chan call.EndReason, 1)
			client.OnCallStateChanged(func(callID string, state call.State) {
				fmt.Printf("call %s -> %s\n", callID, state)
			})
			client.OnCallEnded(func(callID string, reason call.EndReason) {
				ended <- reason
			})

			callID, err := client.StartCall(peerKey)
			if err != nil {
				return err
			}
			fmt.Printf("calling %s (call %s)\n", peerAddr, callID)

			ticker := time.NewTicker(client.IterationInterval())
			defer ticker.Stop()
			hangup := time.After(duration)

			for {
				select {
				case <-ticker.C:
					client.Iterate()
				case <-hangup:
					fmt.Println("hanging up")
					if err := client.EndCall(); err != nil {
						return err
					}
				case reason := <-ended:
					fmt.Printf("call ended (%s)\n", reason.Code)
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:0", "signaling listen address")
	cmd.Flags().StringVar(&proxyAddr, "proxy", "127.0.0.1:9050", "SOCKS5 proxy address")
	cmd.Flags().StringVar(&voiceAddr, "voice", "", "advertised voice path address")
	cmd.Flags().StringVar(&peerKeyHex, "peer-key", "", "peer public key (hex)")
	cmd.Flags().StringVar(&peerAddr, "peer-addr", "", "peer signaling address")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "hang up after this long")
	cmd.MarkFlagRequired("peer-key")
	cmd.MarkFlagRequired("peer-addr")

	return cmd
}
