package gate

import (
	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/metrics"
	"github.com/ccastromar/availability-gate/internal/mgmt"
	"github.com/ccastromar/availability-gate/internal/readiness"
)

// Listener flips the readiness state when the watched deployment reports
// that it has been deployed. Every other event is ignored.
type Listener struct {
	objectName string
	state      *readiness.State
}

func NewListener(objectName string, state *readiness.State) *Listener {
	return &Listener{objectName: objectName, state: state}
}

var _ mgmt.Listener = (*Listener)(nil)

func (l *Listener) HandleEvent(ev mgmt.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.Error("Gate", "availability listener failed on event %s: %v", ev.ID, rec)
		}
	}()

	if ev.Source != l.objectName {
		return
	}
	if ev.Kind != mgmt.KindDeploymentDeployed {
		return
	}

	if l.state.MarkReady() {
		metrics.GateTransitions.Inc(map[string]string{"cause": "event"})
		logx.Warn("Gate", "detected availability of %s, marking the application as ready", l.objectName)
	}
}
