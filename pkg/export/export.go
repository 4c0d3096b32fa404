// Package export implements the orchestrator (C6): it drives the VMX and
// VMDK descriptor parsers, the memory-mapped flat source (C1), the parallel
// grain pipeline (C3) into the stream-optimized VMDK encoder (C4), and
// assembles the result into an OVA (C5) alongside an OVF descriptor (C7)
// and manifest.
package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/codekami/ova-export/format/vmdkstream"
	"github.com/codekami/ova-export/internal/flatsource"
	"github.com/codekami/ova-export/internal/grainpipe"
	"github.com/codekami/ova-export/internal/ovaarchive"
	"github.com/codekami/ova-export/internal/ovfbuild"
	"github.com/codekami/ova-export/internal/vmdkdesc"
	"github.com/codekami/ova-export/internal/vmx"
)

// DefaultChunkSizeMB is the default value of Options.ChunkSizeMB, in MiB. It
// has no effect on the fixed 64 KiB grain size. Export does not read
// ChunkSizeMB: the raw data in flight is not capped by it, only by the grain
// pipeline's channels, each holding at most twice the thread count of grains.
const DefaultChunkSizeMB = 64

// Compression names the three deflate presets the CLI exposes.
type Compression string

const (
	CompressionFast     Compression = "fast"
	CompressionBalanced Compression = "balanced"
	CompressionMax      Compression = "max"
)

func (c Compression) level() (vmdkstream.CompressionLevel, error) {
	switch c {
	case CompressionFast:
		return vmdkstream.CompressionFast, nil
	case CompressionBalanced, "":
		return vmdkstream.CompressionBalanced, nil
	case CompressionMax:
		return vmdkstream.CompressionMax, nil
	default:
		return 0, errors.Errorf("unknown compression level %q", c)
	}
}

// Options controls one Export call.
type Options struct {
	Compression Compression
	Threads     int
	ChunkSizeMB int
	Quiet       bool
	Progress    ProgressCallback
}

// ExportPhase names a stage of the export for progress reporting.
type ExportPhase int

const (
	PhaseParsing ExportPhase = iota
	PhaseCompressing
	// PhaseWriting is not reported by Export: a disk's grains are compressed
	// and written together, and that work is reported as PhaseCompressing.
	PhaseWriting
	PhaseFinalizing
	PhaseComplete
)

func (p ExportPhase) String() string {
	switch p {
	case PhaseParsing:
		return "Parsing"
	case PhaseCompressing:
		return "Compressing"
	case PhaseWriting:
		return "Writing"
	case PhaseFinalizing:
		return "Finalizing"
	case PhaseComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Progress reports cumulative state of an in-flight export. It is a value
// type so callbacks may retain a snapshot safely.
type Progress struct {
	Phase          ExportPhase
	BytesProcessed int64
	BytesTotal     int64
	CurrentDisk    int
	TotalDisks     int
}

// PercentComplete returns 0..100. It returns 100 once Phase is
// PhaseComplete even if BytesTotal is zero, and 0 if BytesTotal is zero and
// the export has not finished.
func (p Progress) PercentComplete() float64 {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.BytesTotal == 0 {
		return 0
	}
	pct := float64(p.BytesProcessed) / float64(p.BytesTotal) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ProgressCallback receives advisory progress updates. Per spec.md §7, a
// callback's panic must never abort the export — Orchestrator recovers from
// it and logs a warning instead.
type ProgressCallback func(Progress)

// DiskDetail summarizes one attached disk for Info.
type DiskDetail struct {
	Filename   string
	SizeBytes  int64
	CreateType string
}

// VMInfo is the summary returned by Orchestrator.Info.
type VMInfo struct {
	Name          string
	GuestOS       string
	MemoryMB      int
	NumCPUs       int
	Disks         []DiskDetail
	TotalDiskSize int64
}

// Orchestrator drives export and info operations against the local
// filesystem.
type Orchestrator struct {
	Logger *logrus.Logger
}

// New returns an Orchestrator logging to a standard logrus.Logger.
func New() *Orchestrator {
	return &Orchestrator{Logger: logrus.StandardLogger()}
}

func (o *Orchestrator) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Info parses a .vmx file and its sibling VMDK descriptors and reports a
// summary without performing any export work.
func (o *Orchestrator) Info(vmxPath string) (*VMInfo, error) {
	cfg, vmxDir, err := loadVMX(vmxPath)
	if err != nil {
		return nil, err
	}

	info := &VMInfo{
		Name:     cfg.DisplayName,
		GuestOS:  cfg.GuestOS,
		MemoryMB: cfg.MemoryMB,
		NumCPUs:  cfg.NumCPUs,
	}

	for _, d := range cfg.Disks {
		vmdkPath := filepath.Join(vmxDir, d.VMDKPath)
		desc, _, err := loadDescriptor(vmdkPath)
		detail := DiskDetail{Filename: d.VMDKPath}
		if err != nil {
			detail.CreateType = "unknown"
			o.logger().WithError(err).WithField("disk", d.VMDKPath).Warn("could not read disk descriptor for info")
			info.Disks = append(info.Disks, detail)
			continue
		}
		detail.CreateType = desc.CreateType
		detail.SizeBytes = flatExtentSize(desc)
		info.TotalDiskSize += detail.SizeBytes
		info.Disks = append(info.Disks, detail)
	}

	return info, nil
}

// Export converts the VM named by vmxPath into a single OVA at outputPath.
//
// On any failure, the partially written OVA is deleted (spec.md §7) and the
// first error encountered is returned, wrapped with context.
func (o *Orchestrator) Export(ctx context.Context, vmxPath, outputPath string, opts Options) (err error) {
	log := o.logger()

	cfg, vmxDir, err := loadVMX(vmxPath)
	if err != nil {
		return err
	}
	if len(cfg.Disks) == 0 {
		return errors.Errorf("vm %q has no attached disks", cfg.DisplayName)
	}

	level, err := opts.Compression.level()
	if err != nil {
		return err
	}

	vmName := sanitizeFilename(cfg.DisplayName)
	if vmName == "" {
		vmName = "vm"
	}

	progress := Progress{Phase: PhaseParsing, TotalDisks: len(cfg.Disks)}
	reportProgress(opts.Progress, progress, log)

	descriptors := make([]*vmdkdesc.Descriptor, len(cfg.Disks))
	flatPaths := make([]string, len(cfg.Disks))
	for i, d := range cfg.Disks {
		vmdkPath := filepath.Join(vmxDir, d.VMDKPath)
		desc, flatPath, err := loadDescriptor(vmdkPath)
		if err != nil {
			return errors.Wrapf(err, "disk %d (%s)", i+1, d.VMDKPath)
		}
		descriptors[i] = desc
		flatPaths[i] = flatPath
		progress.BytesTotal += flatExtentSize(desc)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrapf(err, "create output OVA %q", outputPath)
	}
	succeeded := false
	defer func() {
		closeErr := out.Close()
		if succeeded && closeErr != nil {
			err = errors.Wrap(closeErr, "close output OVA")
			succeeded = false
		}
		if !succeeded {
			if rmErr := os.Remove(outputPath); rmErr != nil && !os.IsNotExist(rmErr) {
				log.WithError(rmErr).Warn("failed to remove partial OVA after export failure")
			}
		}
	}()

	modTime := time.Now()
	archive := ovaarchive.NewWriter(out, modTime)

	var ovfDisks []ovfbuild.Disk
	for i, desc := range descriptors {
		progress.Phase = PhaseCompressing
		progress.CurrentDisk = i + 1
		reportProgress(opts.Progress, progress, log)

		diskName := vmName + "-disk" + strconv.Itoa(i+1) + ".vmdk"
		capacityBytes := flatExtentSize(desc)

		src, err := flatsource.Open(flatPaths[i])
		if err != nil {
			return errors.Wrapf(err, "open flat extent for disk %d", i+1)
		}

		compressedSize, werr := archive.AddStream(diskName, func(w io.Writer) error {
			writer, err := vmdkstream.NewWriter(w, uint64(capacityBytes))
			if err != nil {
				return errors.Wrap(err, "initialize vmdk writer")
			}
			pipeCfg := grainpipe.Config{Threads: opts.Threads, Level: level}
			if err := grainpipe.Run(ctx, src, writer, pipeCfg); err != nil {
				return errors.Wrap(err, "run grain pipeline")
			}
			if err := writer.Finish(); err != nil {
				return errors.Wrap(err, "finish vmdk stream")
			}
			return nil
		})
		closeErr := src.Close()
		if werr != nil {
			return errors.Wrapf(werr, "write disk %d", i+1)
		}
		if closeErr != nil {
			return errors.Wrapf(closeErr, "close flat source for disk %d", i+1)
		}

		progress.BytesProcessed += capacityBytes
		reportProgress(opts.Progress, progress, log)

		ovfDisks = append(ovfDisks, ovfbuild.Disk{
			DiskID:         "vmdisk-" + newDiskUUID(),
			FileRef:        "file" + strconv.Itoa(i+1),
			FileName:       diskName,
			CapacityBytes:  capacityBytes,
			CompressedSize: compressedSize,
		})
	}

	progress.Phase = PhaseFinalizing
	reportProgress(opts.Progress, progress, log)

	ovfXML, err := ovfbuild.Build(ovfbuild.VM{
		Name:     cfg.DisplayName,
		GuestOS:  cfg.GuestOS,
		NumCPUs:  cfg.NumCPUs,
		MemoryMB: cfg.MemoryMB,
		Networks: cfg.Networks,
		Disks:    ovfDisks,
	})
	if err != nil {
		return errors.Wrap(err, "build ovf descriptor")
	}
	if err := archive.AddBytes(vmName+".ovf", ovfXML); err != nil {
		return errors.Wrap(err, "write ovf member")
	}

	if err := archive.AddBytes(vmName+".mf", []byte(archive.ManifestText())); err != nil {
		return errors.Wrap(err, "write manifest member")
	}

	if err := archive.Finish(); err != nil {
		return errors.Wrap(err, "finalize ova archive")
	}

	progress.Phase = PhaseComplete
	progress.BytesProcessed = progress.BytesTotal
	reportProgress(opts.Progress, progress, log)

	succeeded = true
	return nil
}

func reportProgress(cb ProgressCallback, p Progress, log *logrus.Logger) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("progress callback panicked; ignoring")
		}
	}()
	cb(p)
}

func loadVMX(vmxPath string) (*vmx.Config, string, error) {
	f, err := os.Open(vmxPath)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open vmx file %q", vmxPath)
	}
	defer f.Close()

	cfg, err := vmx.Parse(f)
	if err != nil {
		return nil, "", errors.Wrapf(err, "parse vmx file %q", vmxPath)
	}
	return cfg, filepath.Dir(vmxPath), nil
}

func loadDescriptor(vmdkPath string) (*vmdkdesc.Descriptor, string, error) {
	f, err := os.Open(vmdkPath)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open vmdk descriptor %q", vmdkPath)
	}
	defer f.Close()

	desc, err := vmdkdesc.Parse(f)
	if err != nil {
		return nil, "", errors.Wrapf(err, "parse vmdk descriptor %q", vmdkPath)
	}
	if len(desc.Extents) == 0 {
		return nil, "", errors.Errorf("vmdk descriptor %q names no extents", vmdkPath)
	}
	if desc.Extents[0].Type != vmdkdesc.ExtentFlat {
		return nil, "", errors.Errorf("vmdk descriptor %q: unsupported extent type: only FLAT extents are supported", vmdkPath)
	}

	flatPath := filepath.Join(filepath.Dir(vmdkPath), desc.Extents[0].FileName)
	return desc, flatPath, nil
}

func flatExtentSize(desc *vmdkdesc.Descriptor) int64 {
	if len(desc.Extents) == 0 {
		return 0
	}
	return desc.Extents[0].SizeSectors * vmdkstream.SectorSize
}

// sanitizeFilename replaces every character that is not an ASCII letter or
// digit, '_', '-', or '.' with one '_', keeping OVA member names filesystem-
// and TAR-safe.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// newDiskUUID gives each disk a collision-free OVF diskId without tracking
// state across export runs.
func newDiskUUID() string {
	return uuid.NewString()
}
