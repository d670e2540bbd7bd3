// Package transfer implements the concrete transfer methods. Each
// method moves one source directory to one destination path and is
// selected by its configuration identifier.
package transfer

import (
	"github.com/bnema/zerowrap"

	"github.com/bnema/rotavault/internal/boundaries/out"
)

// Methods returns every built-in transfer method keyed by the
// identifier used in destination configuration.
func Methods(log zerowrap.Logger) map[string]out.Transferer {
	return map[string]out.Transferer{
		"local": NewLocal(log),
		"rsync": NewRsync(log),
		"scp":   NewSCP(log),
		"smb":   NewSMB(log),
	}
}
