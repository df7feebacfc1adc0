package analyzer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeanAbs(t *testing.T) {
	require.InDelta(t, 0.5, MeanAbs([]float32{0.2, -0.4, 0.6, -0.8}), 1e-6)
	require.Zero(t, MeanAbs(nil))
	require.InDelta(t, 0.5, MeanAbs([]float32{float32(math.NaN()), -0.5, float32(math.Inf(1))}), 1e-6)
	require.Zero(t, MeanAbs([]float32{float32(math.NaN())}))
}

func TestGate(t *testing.T) {
	require.Equal(t, 0.3, Gate(0.3, 0))
	require.Zero(t, Gate(-0.3, 0))
	require.Zero(t, Gate(0.1, 0.1))
	require.InDelta(t, 0.5, Gate(0.55, 0.1), 1e-9)
	require.Equal(t, 1.0, Gate(3, 0.5))
	require.Zero(t, Gate(0.9, 1))
}

func TestMix(t *testing.T) {
	require.Equal(t, []float32{0.5, -0.25}, Mix([]float32{1, 0, -0.5, 0, 9}, 2))
	require.Equal(t, []float32{1, 2}, Mix([]float32{1, 2}, 1))
	require.Empty(t, Mix([]float32{1}, 2))
}

func TestAnalyzeStereo(t *testing.T) {
	a := New(Config{Channels: 2, NoiseFloor: 0.1})

	lvl := a.Analyze([]float32{0.6, 0.4, -0.6, -0.4})
	require.InDelta(t, 0.5, lvl.Mean, 1e-6)
	require.InDelta(t, (0.5-0.1)/0.9, lvl.Gated, 1e-6)
	require.InDelta(t, 0.375, lvl.Envelope, 1e-6)

	quiet := a.Analyze([]float32{0.05, 0.05})
	require.Zero(t, quiet.Gated)
	require.InDelta(t, 0.375*0.94, quiet.Envelope, 1e-6)
}

func TestAnalyzeEmptyKeepsEnvelope(t *testing.T) {
	a := New(Config{})
	a.Analyze([]float32{1})
	lvl := a.Analyze(nil)
	require.Zero(t, lvl.Mean)
	require.InDelta(t, 0.75, lvl.Envelope, 1e-9)
}

func TestClamp(t *testing.T) {
	require.Equal(t, 1.0, clamp(2, 0, 1))
	require.Equal(t, 0.0, clamp(-1, 0, 1))
	require.Equal(t, 0.5, clamp(0.5, 0, 1))
	require.Equal(t, 0.0, clamp(math.NaN(), 0, 1))
}
