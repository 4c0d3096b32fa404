// Package cli wires the ovaexport subcommands onto a cobra root command.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ovaexport",
	Short: "Convert a VMware Workstation VM into a single OVA archive",
	Long: `ovaexport reads a .vmx configuration and its attached monolithicFlat
VMDK disks, compresses each disk's grains in parallel across CPU cores, and
streams the result into a single self-contained OVA archive.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
