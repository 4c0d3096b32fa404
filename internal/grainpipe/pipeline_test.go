package grainpipe

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codekami/ova-export/format/vmdkstream"
)

type fakeSource struct {
	grains [][]byte
}

func (f *fakeSource) GrainCount(int) uint64 { return uint64(len(f.grains)) }

func (f *fakeSource) Grain(sequence uint64, _ int) ([]byte, error) {
	return f.grains[sequence], nil
}

type recordingSink struct {
	mu   sync.Mutex
	seen []uint64
}

func (s *recordingSink) WriteGrain(sequence uint64, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, sequence)
	return nil
}

func TestRunEmitsGrainsInAscendingOrder(t *testing.T) {
	grains := make([][]byte, 200)
	for i := range grains {
		grains[i] = []byte{byte(i), byte(i >> 8)}
	}
	source := &fakeSource{grains: grains}
	sink := &recordingSink{}

	err := Run(context.Background(), source, sink, Config{Threads: 8, Level: vmdkstream.CompressionFast})
	require.NoError(t, err)

	require.Len(t, sink.seen, len(grains))
	for i, seq := range sink.seen {
		require.EqualValues(t, i, seq)
	}
}

func TestRunEmptySourceIsNoop(t *testing.T) {
	sink := &recordingSink{}
	err := Run(context.Background(), &fakeSource{}, sink, Config{})
	require.NoError(t, err)
	require.Empty(t, sink.seen)
}

type erroringSink struct{}

func (erroringSink) WriteGrain(uint64, []byte) error {
	return context.Canceled
}

func TestRunPropagatesSinkError(t *testing.T) {
	grains := [][]byte{{1}, {2}, {3}}
	err := Run(context.Background(), &fakeSource{grains: grains}, erroringSink{}, Config{Threads: 2})
	require.Error(t, err)
}

func TestConfigResolveDefaults(t *testing.T) {
	cfg := Config{}.resolve()
	require.Greater(t, cfg.Threads, 0)
	require.Equal(t, vmdkstream.GrainSizeBytes, cfg.GrainSizeBytes)
}
