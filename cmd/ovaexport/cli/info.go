package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/codekami/ova-export/pkg/export"
)

func init() {
	cmd := &cobra.Command{
		Use:   "info <vmx-file>",
		Short: "Print VM name, guest OS, CPU count, memory, and disk list",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	rootCmd.AddCommand(cmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	vmxPath := args[0]

	orch := export.Orchestrator{}
	info, err := orch.Info(vmxPath)
	if err != nil {
		return errors.Wrapf(err, "info %q", vmxPath)
	}

	fmt.Printf("Name:    %s\n", info.Name)
	fmt.Printf("Guest OS: %s\n", info.GuestOS)
	fmt.Printf("CPUs:    %d\n", info.NumCPUs)
	fmt.Printf("Memory:  %d MB\n", info.MemoryMB)
	fmt.Printf("Disks:\n")
	for _, d := range info.Disks {
		fmt.Printf("  %-30s %12d bytes  %s\n", d.Filename, d.SizeBytes, d.CreateType)
	}
	fmt.Printf("Total disk size: %d bytes\n", info.TotalDiskSize)
	return nil
}
