package port

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

const (
	// RangeMin is the default lowest candidate port. Ports below it are
	// privileged on most systems.
	RangeMin = 1024

	// RangeMax is the highest valid TCP port number (2^16 - 1).
	RangeMax = 65535

	maxPort = RangeMax
)

// Checker decides whether a single port is free. *Scanner is the production
// implementation.
type Checker interface {
	IsPortAvailable(port int) bool
}

// Resolver finds a free port by random sampling with a hard attempt bound.
//
// The generator is owned by the Resolver and never shared, so a seeded
// Resolver produces the same candidate sequence on every run.
type Resolver struct {
	checker Checker
	rng     *rand.Rand
	logger  *slog.Logger
}

// NewResolver creates a Resolver from a checker and a generator.
// A nil logger discards log output.
func NewResolver(checker Checker, rng *rand.Rand, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{checker: checker, rng: rng, logger: logger}
}

// NewSeededResolver creates a Resolver over checker whose candidate sequence
// is fixed by seed.
func NewSeededResolver(checker Checker, seed uint64, logger *slog.Logger) *Resolver {
	return NewResolver(checker, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), logger)
}

// NewDefaultResolver creates a Resolver that checks the loopback address and
// is seeded from the clock.
func NewDefaultResolver(logger *slog.Logger) *Resolver {
	return NewSeededResolver(NewScanner(), uint64(time.Now().UnixNano()), logger)
}

// FindAvailableTCPPort picks a free port from [RangeMin, RangeMax].
func (r *Resolver) FindAvailableTCPPort() (int, error) {
	return r.FindAvailablePort(RangeMin, RangeMax)
}

// FindAvailableTCPPortFrom picks a free port from [minPort, RangeMax].
func (r *Resolver) FindAvailableTCPPortFrom(minPort int) (int, error) {
	return r.FindAvailablePort(minPort, RangeMax)
}

// FindAvailablePort returns a port from [minPort, maxPort] that was free when
// checked.
//
// Candidates are drawn uniformly with replacement, so the same port may be
// checked twice. At most maxPort-minPort+1 checks are made; when all of them
// fail the result is a *model.PortExhaustedError.
func (r *Resolver) FindAvailablePort(minPort, maxPort int) (int, error) {
	if minPort < 0 || maxPort > RangeMax || minPort > maxPort {
		return 0, fmt.Errorf("%w: [%d, %d]", model.ErrInvalidPortRange, minPort, maxPort)
	}

	span := maxPort - minPort + 1
	for attempt := 1; attempt <= span; attempt++ {
		candidate := minPort + r.rng.IntN(span)
		if r.checker.IsPortAvailable(candidate) {
			r.logger.Debug("found available port", "port", candidate, "attempts", attempt)
			return candidate, nil
		}
		r.logger.Debug("port unavailable", "port", candidate, "attempt", attempt)
	}

	return 0, &model.PortExhaustedError{Min: minPort, Max: maxPort, Attempts: span}
}
