// Package grainpipe implements the parallel grain pipeline (C3): a single
// producer reads grains in sequence order from a Source, a fixed-size worker
// pool compresses them out of order, and a single consumer re-sequences the
// compressed grains before handing them to a Sink in strictly ascending
// order. See spec §4.3/§5 for the scheduling and ordering contract.
package grainpipe

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/codekami/ova-export/format/vmdkstream"
)

// Source is the read side of the pipeline: C1, or a test double.
type Source interface {
	GrainCount(grainSizeBytes int) uint64
	Grain(sequence uint64, grainSizeBytes int) ([]byte, error)
}

// Sink is the write side of the pipeline: C4's Writer, or a test double.
// WriteGrain must be called in strictly ascending sequence order, which the
// pipeline's reorder stage guarantees.
type Sink interface {
	WriteGrain(sequence uint64, compressed []byte) error
}

// Config controls pipeline parallelism and compression.
type Config struct {
	// Threads is the worker pool size. Zero means runtime.NumCPU().
	Threads int
	// Level is the deflate level applied to every grain.
	Level vmdkstream.CompressionLevel
	// GrainSizeBytes overrides the grain size; zero means
	// vmdkstream.GrainSizeBytes.
	GrainSizeBytes int
}

func (c Config) resolve() Config {
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.GrainSizeBytes <= 0 {
		c.GrainSizeBytes = vmdkstream.GrainSizeBytes
	}
	return c
}

type indexedGrain struct {
	sequence uint64
	bytes    []byte
}

// Run drives source → compress → sink to completion. On any worker or sink
// error, remaining enqueued work is dropped, all goroutines are joined, and
// the first error is returned.
func Run(ctx context.Context, source Source, sink Sink, cfg Config) error {
	cfg = cfg.resolve()
	total := source.GrainCount(cfg.GrainSizeBytes)
	if total == 0 {
		return nil
	}

	queueCap := 2 * cfg.Threads
	rawCh := make(chan indexedGrain, queueCap)
	resultCh := make(chan indexedGrain, queueCap)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return produce(gctx, source, cfg, total, rawCh)
	})

	for i := 0; i < cfg.Threads; i++ {
		g.Go(func() error {
			return compress(gctx, cfg.Level, rawCh, resultCh)
		})
	}

	g.Go(func() error {
		return consume(gctx, sink, total, resultCh)
	})

	return g.Wait()
}

func produce(ctx context.Context, source Source, cfg Config, total uint64, rawCh chan<- indexedGrain) error {
	defer close(rawCh)
	for seq := uint64(0); seq < total; seq++ {
		grain, err := source.Grain(seq, cfg.GrainSizeBytes)
		if err != nil {
			return errors.Wrapf(err, "read grain %d", seq)
		}
		// Copy out of the (possibly memory-mapped) source: workers own
		// their buffers independent of the source's lifetime.
		owned := make([]byte, len(grain))
		copy(owned, grain)

		select {
		case rawCh <- indexedGrain{sequence: seq, bytes: owned}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func compress(ctx context.Context, level vmdkstream.CompressionLevel, rawCh <-chan indexedGrain, resultCh chan<- indexedGrain) error {
	for {
		select {
		case ig, ok := <-rawCh:
			if !ok {
				return nil
			}
			compressed, err := vmdkstream.CompressGrain(ig.bytes, level)
			if err != nil {
				return errors.Wrapf(err, "compress grain %d", ig.sequence)
			}
			select {
			case resultCh <- indexedGrain{sequence: ig.sequence, bytes: compressed}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume re-sequences compressed grains and emits them to sink strictly in
// ascending order, starting at zero.
func consume(ctx context.Context, sink Sink, total uint64, resultCh <-chan indexedGrain) error {
	pending := make(map[uint64][]byte)
	next := uint64(0)
	received := uint64(0)

	for received < total {
		select {
		case ig := <-resultCh:
			received++
			pending[ig.sequence] = ig.bytes
			for {
				b, ok := pending[next]
				if !ok {
					break
				}
				if err := sink.WriteGrain(next, b); err != nil {
					return errors.Wrapf(err, "write grain %d", next)
				}
				delete(pending, next)
				next++
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if next != total {
		// Every sequence in [0, total) was received exactly once and the
		// drain loop above runs after each receive, so the reorder buffer
		// must be fully drained once received==total. Reaching here means
		// a worker lost a grain or duplicated a sequence number.
		panic(errors.Errorf("grain pipeline: reorder buffer left %d of %d grains unemitted", total-next, total))
	}
	return nil
}
