package mgmt

import "time"

const (
	KindDeploymentDeployed   = "deployment-deployed"
	KindDeploymentUndeployed = "deployment-undeployed"
)

// Event is a notification emitted by a managed resource.
type Event struct {
	ID        string
	Sequence  uint64
	Source    string
	Kind      string
	Timestamp time.Time
}

// Listener receives events for the resources it was added to. HandleEvent is
// called on a goroutine owned by the registry.
type Listener interface {
	HandleEvent(ev Event)
}

type ListenerFunc func(ev Event)

func (f ListenerFunc) HandleEvent(ev Event) { f(ev) }

// Source is the capability of attaching a listener to a named resource.
// AddListener fails with ErrMalformedName or ErrInstanceNotFound.
type Source interface {
	AddListener(name string, l Listener) error
}
