package gate

import (
	"errors"

	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/mgmt"
)

// Subscribe attaches l to the resource called name. It reports false when
// the name is malformed, the resource does not exist or src misbehaves; the
// caller decides how to degrade.
func Subscribe(src mgmt.Source, name string, l mgmt.Listener) (ok bool) {
	if src == nil {
		logx.Warn("Gate", "no management event source configured for %s", name)
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			logx.Error("Gate", "event source panicked registering %s: %v", name, rec)
			ok = false
		}
	}()

	err := src.AddListener(name, l)
	switch {
	case err == nil:
		logx.Info("Gate", "listening for availability events of %s", name)
		return true
	case errors.Is(err, mgmt.ErrMalformedName):
		logx.Warn("Gate", "could not register availability listener for object name %s: %v", name, err)
	case errors.Is(err, mgmt.ErrInstanceNotFound):
		logx.Warn("Gate", "could not find object instance with object name %s: %v", name, err)
	default:
		logx.Error("Gate", "unexpected error registering availability listener for %s: %v", name, err)
	}
	return false
}
