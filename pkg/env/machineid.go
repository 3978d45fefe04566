package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "copro.go"

// MachineID retrieves the ID identifying the machine, hashed for this
// application.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		if id, err = os.Hostname(); err != nil {
			return "unknown"
		}
	}
	return id
}

// DefaultLinkName derives the link name from the machine ID.
func DefaultLinkName() string {
	id := MachineID()
	if len(id) > 12 {
		id = id[:12]
	}
	return "copro-" + id
}
