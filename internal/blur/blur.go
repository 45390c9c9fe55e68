package blur

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nao1215/oniongraph/internal/random"
)

// Default disclosure parameters.
const (
	// DefaultLogResolution is the granularity of the blurred log time.
	DefaultLogResolution = time.Hour

	// DefaultLogNoise is the upper bound of the noise added to the log time.
	DefaultLogNoise = time.Hour

	// DefaultElapsedResolution is the granularity of blurred build durations.
	DefaultElapsedResolution = 100 * time.Millisecond

	// DefaultElapsedNoise is the upper bound of the noise added to build durations.
	DefaultElapsedNoise = 100 * time.Millisecond
)

// Params is one (resolution, noise bound) pair.
type Params struct {
	// Resolution is the step every blurred value is a multiple of.
	Resolution time.Duration `yaml:"resolution"`

	// Noise is the exclusive upper bound of the uniform noise.
	Noise time.Duration `yaml:"noise"`
}

// Validate checks that the pair can be used with Blur.
func (p Params) Validate() error {
	if p.Resolution <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidResolution, p.Resolution)
	}
	if p.Noise < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidNoise, p.Noise)
	}
	return nil
}

// Blur adds noise drawn uniformly from [0, p.Noise) to value and floors the
// sum to a multiple of p.Resolution.
//
// The result is always <= value+p.Noise and > value-p.Resolution.
// A zero noise bound adds nothing; a non-positive resolution leaves the
// noisy value unquantized.
func Blur(value time.Duration, p Params, r *rand.Rand) time.Duration {
	noisy := value
	if p.Noise > 0 {
		noisy += time.Duration(r.Int64N(int64(p.Noise)))
	}
	if p.Resolution <= 0 {
		return noisy
	}
	return floorTo(noisy, p.Resolution)
}

// floorTo rounds v down to a multiple of step, towards negative infinity.
func floorTo(v, step time.Duration) time.Duration {
	q := v / step
	if v%step != 0 && v < 0 {
		q--
	}
	return q * step
}

// Blurrer applies the two fixed parameter pairs of a run.
type Blurrer struct {
	logTime Params
	elapsed Params
	rand    *rand.Rand
}

// NewBlurrer returns a Blurrer for the given pairs. A nil r selects the
// crypto-backed generator.
func NewBlurrer(logTime, elapsed Params, r *rand.Rand) *Blurrer {
	if r == nil {
		r = random.New()
	}
	return &Blurrer{
		logTime: logTime,
		elapsed: elapsed,
		rand:    r,
	}
}

// Time blurs an absolute time with the log-time pair.
// The result is in UTC.
func (b *Blurrer) Time(t time.Time) time.Time {
	ns := Blur(time.Duration(t.UnixNano()), b.logTime, b.rand)
	return time.Unix(0, int64(ns)).UTC()
}

// Elapsed blurs a build duration with the elapsed pair.
func (b *Blurrer) Elapsed(d time.Duration) time.Duration {
	return Blur(d, b.elapsed, b.rand)
}
