package plugin

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/polaris-analysis/pta"
)

// Timer measures the wall time of the analysis. It injects no
// constraints. Register it before the other plugins so the measurement
// covers their work too.
type Timer struct {
	pta.NopPlugin

	start   time.Time
	elapsed time.Duration
}

func NewTimer() *Timer { return &Timer{} }

func (t *Timer) OnStart(*pta.Solver) {
	t.start = time.Now()
}

func (t *Timer) OnFinish(*pta.Solver) {
	t.elapsed = time.Since(t.start)
	log.Info("Pointer analysis elapsed time: ", t.elapsed, ". ")
}

// Elapsed returns the measured duration; zero until OnFinish fired.
func (t *Timer) Elapsed() time.Duration { return t.elapsed }
