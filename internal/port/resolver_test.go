package port

import (
	"errors"
	"math/rand/v2"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

// countingChecker records every checked port and answers from a predicate.
type countingChecker struct {
	available func(port int) bool
	checked   []int
}

func (p *countingChecker) IsPortAvailable(port int) bool {
	p.checked = append(p.checked, port)
	return p.available(port)
}

func allFree(int) bool  { return true }
func noneFree(int) bool { return false }

// TestFindAvailablePort_InRange verifies the returned port always lies in
// the requested range, for a spread of ranges.
func TestFindAvailablePort_InRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		minPort := 1024 + rng.IntN(60000)
		maxPort := minPort + rng.IntN(65535-minPort+1)

		checker := &countingChecker{available: allFree}
		resolver := NewSeededResolver(checker, uint64(i), nil)

		port, err := resolver.FindAvailablePort(minPort, maxPort)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, port, minPort)
		assert.LessOrEqual(t, port, maxPort)
		assert.Len(t, checker.checked, 1)
	}
}

// TestFindAvailablePort_RealScanner verifies the port returned by the real
// scanner is still bindable when the call returns.
func TestFindAvailablePort_RealScanner(t *testing.T) {
	resolver := NewDefaultResolver(nil)

	port, err := resolver.FindAvailablePort(50000, 50100)
	require.NoError(t, err, "should find an available port in range 50000-50100")

	assert.GreaterOrEqual(t, port, 50000)
	assert.LessOrEqual(t, port, 50100)
	assert.True(t, NewScanner().IsPortAvailable(port))
}

// TestFindAvailablePort_ExhaustedAttemptBound verifies that a fully occupied
// range fails after exactly span checks, never fewer and never more.
func TestFindAvailablePort_ExhaustedAttemptBound(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
	}{
		{name: "single port", min: 50000, max: 50000},
		{name: "ten ports", min: 100, max: 109},
		{name: "hundred ports", min: 40000, max: 40099},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &countingChecker{available: noneFree}
			resolver := NewSeededResolver(checker, 42, nil)

			_, err := resolver.FindAvailablePort(tt.min, tt.max)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrPortExhausted))

			span := tt.max - tt.min + 1
			assert.Len(t, checker.checked, span)

			var exhausted *model.PortExhaustedError
			require.True(t, errors.As(err, &exhausted))
			assert.Equal(t, tt.min, exhausted.Min)
			assert.Equal(t, tt.max, exhausted.Max)
			assert.Equal(t, span, exhausted.Attempts)

			for _, p := range checker.checked {
				assert.GreaterOrEqual(t, p, tt.min)
				assert.LessOrEqual(t, p, tt.max)
			}
		})
	}
}

// TestFindAvailablePort_SinglePortOccupied binds a real listener on the only
// port of the range and expects PortExhausted after one check.
func TestFindAvailablePort_SinglePortOccupied(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:50000")
	if err != nil {
		// Something else holds 50000; an OS-assigned port exercises the same path.
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
	}
	defer func() { _ = listener.Close() }()
	port := listener.Addr().(*net.TCPAddr).Port

	checker := &countingChecker{available: NewScanner().IsPortAvailable}
	resolver := NewSeededResolver(checker, 7, nil)

	_, err = resolver.FindAvailablePort(port, port)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPortExhausted))
	assert.Equal(t, []int{port}, checker.checked)
}

// TestFindAvailablePort_Deterministic verifies that equal seeds give equal
// candidate sequences.
func TestFindAvailablePort_Deterministic(t *testing.T) {
	first := &countingChecker{available: noneFree}
	second := &countingChecker{available: noneFree}

	_, _ = NewSeededResolver(first, 99, nil).FindAvailablePort(2000, 2999)
	_, _ = NewSeededResolver(second, 99, nil).FindAvailablePort(2000, 2999)

	assert.Equal(t, first.checked, second.checked)
}

// TestFindAvailablePort_RetriesUntilFree verifies occupied candidates are
// skipped and the first free one is returned.
func TestFindAvailablePort_RetriesUntilFree(t *testing.T) {
	calls := 0
	checker := &countingChecker{available: func(int) bool {
		calls++
		return calls == 3
	}}
	resolver := NewSeededResolver(checker, 5, nil)

	port, err := resolver.FindAvailablePort(3000, 3999)
	require.NoError(t, err)
	assert.Len(t, checker.checked, 3)
	assert.Equal(t, checker.checked[2], port)
}

// TestFindAvailablePort_InvalidRange verifies bad ranges fail without probing.
func TestFindAvailablePort_InvalidRange(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
	}{
		{name: "min above max", min: 5000, max: 4000},
		{name: "negative min", min: -1, max: 10},
		{name: "max above 65535", min: 1024, max: 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &countingChecker{available: allFree}
			_, err := NewSeededResolver(checker, 1, nil).FindAvailablePort(tt.min, tt.max)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidPortRange))
			assert.Empty(t, checker.checked)
		})
	}
}

// TestFindAvailableTCPPort_DefaultRange verifies the default and
// minimum-only variants stay inside their ranges.
func TestFindAvailableTCPPort_DefaultRange(t *testing.T) {
	resolver := NewSeededResolver(&countingChecker{available: allFree}, 3, nil)

	port, err := resolver.FindAvailableTCPPort()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, RangeMin)
	assert.LessOrEqual(t, port, RangeMax)

	port, err = resolver.FindAvailableTCPPortFrom(60000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 60000)
	assert.LessOrEqual(t, port, RangeMax)
}
