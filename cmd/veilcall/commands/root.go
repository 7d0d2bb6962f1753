package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

// Execute runs the veilcall command tree.
func Execute() error {
	root := &cobra.Command{
		Use:   "veilcall",
		Short: "Encrypted voice call signaling over an anonymizing transport",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(keygenCmd(), demoCmd(), listenCmd(), callCmd())
	return root.Execute()
}
