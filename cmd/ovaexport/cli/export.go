package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/codekami/ova-export/pkg/export"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export <vmx-file>",
		Short: "Export a VM to an OVA archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "", "output OVA path (default: <vm-name>.ova)")
	cmd.Flags().StringP("compression", "c", "balanced", "compression level: fast|balanced|max")
	cmd.Flags().IntP("threads", "t", 0, "worker thread count (default: number of CPUs)")
	cmd.Flags().Int("chunk-size", export.DefaultChunkSizeMB, "in-flight raw data limit, in MiB (accepted; not used by the export)")
	cmd.Flags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	vmxPath := args[0]

	output, _ := cmd.Flags().GetString("output")
	compression, _ := cmd.Flags().GetString("compression")
	threads, _ := cmd.Flags().GetInt("threads")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if output == "" {
		base := strings.TrimSuffix(filepath.Base(vmxPath), filepath.Ext(vmxPath))
		output = base + ".ova"
	}

	opts := export.Options{
		Compression: export.Compression(compression),
		Threads:     threads,
		ChunkSizeMB: chunkSize,
		Quiet:       quiet,
	}
	if !quiet {
		opts.Progress = func(p export.Progress) {
			fmt.Printf("\r[%s] disk %d/%d  %5.1f%%", p.Phase, p.CurrentDisk, p.TotalDisks, p.PercentComplete())
			if p.Phase == export.PhaseComplete {
				fmt.Println()
			}
		}
	}

	orch := export.Orchestrator{Logger: logrus.StandardLogger()}
	if err := orch.Export(context.Background(), vmxPath, output, opts); err != nil {
		return errors.Wrapf(err, "export %q", vmxPath)
	}

	fmt.Printf("wrote %s\n", output)
	return nil
}
