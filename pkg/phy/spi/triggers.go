// Package spi carries transaction framed links over SPI, either as the
// secondary driven by a peripheral controller or as the host clocking the
// transactions.
package spi

import (
	"errors"
	"fmt"

	fx "github.com/robotalks/copro.go/pkg/framework"
)

// Trigger is a synchronization trigger id of the SPI peripheral.
type Trigger uint8

// MaxTrigger is the largest trigger id.
const MaxTrigger Trigger = 7

var (
	// ErrTriggerRange indicates a trigger id above MaxTrigger.
	ErrTriggerRange = errors.New("trigger id out of range")
	// ErrTriggerConflict indicates one trigger id assigned to two roles.
	ErrTriggerConflict = errors.New("trigger id assigned twice")
)

// Triggers assigns the synchronization triggers used by the secondary.
type Triggers struct {
	// TxAvailability is driven to signal the host a frame is loaded.
	TxAvailability Trigger
	// ChipSelect fires when the host asserts chip select.
	ChipSelect Trigger
	// ChipSelectInverted fires when the host deasserts chip select.
	ChipSelectInverted Trigger
	// TransferComplete fires when the transfer engine finished.
	TransferComplete Trigger
}

// DefaultTriggers is the default trigger assignment.
var DefaultTriggers = Triggers{
	TxAvailability:     7,
	ChipSelect:         4,
	ChipSelectInverted: 5,
	TransferComplete:   6,
}

func (t Triggers) roles() []struct {
	name string
	id   Trigger
} {
	return []struct {
		name string
		id   Trigger
	}{
		{"tx-availability", t.TxAvailability},
		{"chip-select", t.ChipSelect},
		{"chip-select-inverted", t.ChipSelectInverted},
		{"transfer-complete", t.TransferComplete},
	}
}

// Validate checks every id is in range and no id serves two roles.
func (t Triggers) Validate() error {
	var errs fx.AggregatedError
	seen := make(map[Trigger]string)
	for _, role := range t.roles() {
		if role.id > MaxTrigger {
			errs.Add(fmt.Errorf("%s trigger %d: %w", role.name, role.id, ErrTriggerRange))
			continue
		}
		if other, ok := seen[role.id]; ok {
			errs.Add(fmt.Errorf("%s and %s trigger %d: %w", other, role.name, role.id, ErrTriggerConflict))
			continue
		}
		seen[role.id] = role.name
	}
	return errs.Aggregate()
}

func (t Triggers) String() string {
	return fmt.Sprintf("tx=%d cs=%d csn=%d tc=%d", t.TxAvailability, t.ChipSelect, t.ChipSelectInverted, t.TransferComplete)
}
