package transceiver

import (
	"github.com/spinnaker-go/spinnman/internal/locks"
	"github.com/spinnaker-go/spinnman/internal/machine"
	"github.com/spinnaker-go/spinnman/internal/transport"
)

// chipLockCoord adapts an (x, y) pair to the locks package's coordinate
// type. Every package in this module models a chip coordinate as (X, Y
// uint8); these conversions exist because each package's lock/selection
// domain is independent and shouldn't import one another just to share a
// two-field struct.
func chipLockCoord(x, y uint8) locks.ChipCoord { return locks.ChipCoord{X: x, Y: y} }

func machineCoord(x, y uint8) machine.ChipCoord { return machine.ChipCoord{X: x, Y: y} }

func transportCoord(x, y uint8) transport.ChipCoord { return transport.ChipCoord{X: x, Y: y} }
