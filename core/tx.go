package core

import (
	"fmt"
	"log/slog"
)

// Tx is the view of a port inside Update. It is only valid for the duration
// of the callback.
type Tx struct {
	p     *Port
	err   error
	dirty bool
}

func (tx *Tx) valid(op string, pin int) bool {
	if err := tx.p.checkPin(op, pin); err != nil && tx.err == nil {
		tx.err = err
	}
	return pin >= 0 && pin < tx.p.cfg.Pins
}

// Len returns the number of pins
func (tx *Tx) Len() int {
	return tx.p.cfg.Pins
}

// Log returns the port logger
func (tx *Tx) Log() *slog.Logger {
	return tx.p.log
}

// Level returns the level software observes on pin
func (tx *Tx) Level(pin int) bool {
	if !tx.valid("read", pin) {
		return false
	}
	return tx.p.bank.ReadLevel(pin)
}

// Levels returns the observed level of every pin as a bitmask
func (tx *Tx) Levels() uint64 {
	var m uint64
	for i := 0; i < tx.p.cfg.Pins; i++ {
		if tx.p.bank.ReadLevel(i) {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Pin returns the electrical state of pin
func (tx *Tx) Pin(pin int) Pin {
	if !tx.valid("pin", pin) {
		return Pin{}
	}
	return tx.p.bank.Pin(pin)
}

// DrivenMask returns the output latch of every pin as a bitmask
func (tx *Tx) DrivenMask() uint64 {
	var m uint64
	for i, pin := range tx.p.bank.pins {
		if pin.Driven {
			m |= 1 << uint(i)
		}
	}
	return m
}

// DirectionMask returns a bit for every pin whose direction is dir
func (tx *Tx) DirectionMask(dir Direction) uint64 {
	var m uint64
	for i, pin := range tx.p.bank.pins {
		if pin.Direction == dir {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Trigger returns the trigger mode of pin
func (tx *Tx) Trigger(pin int) TriggerMode {
	if !tx.valid("trigger", pin) {
		return Disabled
	}
	return tx.p.triggers[pin]
}

// State returns the interrupt state of pin
func (tx *Tx) State(pin int) InterruptState {
	if !tx.valid("state", pin) {
		return InterruptState{}
	}
	return tx.p.latch.State(pin)
}

// RawStatus returns pending bits before enable and mask gating
func (tx *Tx) RawStatus() uint64 {
	return tx.p.agg.RawMask()
}

// VisibleStatus returns the bits of pins asserting their line
func (tx *Tx) VisibleStatus() uint64 {
	return tx.p.agg.VisibleMask()
}

// EnabledMask returns the interrupt enable bits
func (tx *Tx) EnabledMask() uint64 {
	return tx.p.latch.EnabledMask()
}

// MaskedMask returns the interrupt mask bits
func (tx *Tx) MaskedMask() uint64 {
	return tx.p.latch.MaskedMask()
}

// SetOutput drives pin. Writes to pins that are not driving are logged and
// dropped.
func (tx *Tx) SetOutput(pin int, level bool) {
	if !tx.valid("set output", pin) {
		return
	}
	tx.p.bank.SetOutputLevel(pin, level)
}

// ToggleOutput inverts the driven level of pin
func (tx *Tx) ToggleOutput(pin int) {
	if !tx.valid("toggle output", pin) {
		return
	}
	tx.p.bank.SetOutputLevel(pin, !tx.p.bank.pins[pin].Driven)
}

// SetOutputLatch stores level as the driven value of pin even when the pin
// is not driving, so it appears once the driver is enabled
func (tx *Tx) SetOutputLatch(pin int, level bool) {
	if !tx.valid("set output latch", pin) {
		return
	}
	p := &tx.p.bank.pins[pin]
	if tx.p.bank.canDrive(p) {
		tx.p.bank.SetOutputLevel(pin, level)
		return
	}
	p.Driven = level
}

// SetDirection changes the direction of pin. Unknown directions are logged
// and the previous direction is kept.
func (tx *Tx) SetDirection(pin int, dir Direction) {
	if !tx.valid("set direction", pin) {
		return
	}
	if dir > Bidirectional {
		tx.p.log.Warn("invalid direction ignored", "pin", pin, "direction", dir)
		return
	}
	tx.p.bank.SetDirection(pin, dir)
	tx.dirty = true
}

// SetDriveEnabled gates the output driver of pin
func (tx *Tx) SetDriveEnabled(pin int, on bool) {
	if !tx.valid("set drive", pin) {
		return
	}
	tx.p.bank.SetDriveEnabled(pin, on)
}

// SetInputDisabled disconnects the input buffer of pin
func (tx *Tx) SetInputDisabled(pin int, off bool) {
	if !tx.valid("set input disable", pin) {
		return
	}
	tx.p.bank.SetInputDisabled(pin, off)
	tx.dirty = true
}

// SetTrigger changes the trigger mode of pin. Invalid modes are logged and
// the previous mode is kept.
func (tx *Tx) SetTrigger(pin int, mode TriggerMode) {
	if !tx.valid("set trigger", pin) {
		return
	}
	if !mode.Valid() {
		tx.p.log.Warn("invalid trigger mode ignored", "pin", pin, "mode", mode, "keep", tx.p.triggers[pin])
		return
	}
	old := tx.p.triggers[pin]
	if old == mode {
		return
	}
	tx.p.triggers[pin] = mode
	if !tx.p.latch.Sticky() && old.IsLevel() && !mode.IsLevel() {
		tx.p.latch.Clear(pin)
	}
	tx.dirty = true
}

// SetInterruptEnabled changes the enable bit of pin
func (tx *Tx) SetInterruptEnabled(pin int, on bool) {
	if !tx.valid("set interrupt enable", pin) {
		return
	}
	tx.p.latch.SetEnabled(pin, on)
	tx.dirty = true
}

// SetInterruptMasked changes the mask bit of pin
func (tx *Tx) SetInterruptMasked(pin int, on bool) {
	if !tx.valid("set interrupt mask", pin) {
		return
	}
	tx.p.latch.SetMasked(pin, on)
	tx.dirty = true
}

// ClearInterrupt clears the pending bit of pin
func (tx *Tx) ClearInterrupt(pin int) {
	if !tx.valid("clear interrupt", pin) {
		return
	}
	tx.p.latch.Clear(pin)
	tx.dirty = true
}

// ClearInterrupts clears the pending bit of every pin set in mask. Bits
// beyond the port width are logged and ignored.
func (tx *Tx) ClearInterrupts(mask uint64) {
	if extra := mask &^ tx.fullMask(); extra != 0 {
		tx.p.log.Warn("clear of pins beyond port width ignored", "bits", fmt.Sprintf("%#x", extra))
	}
	tx.p.latch.ClearMask(mask & tx.fullMask())
	tx.dirty = true
}

// Refresh forces a recompute at the end of the transaction
func (tx *Tx) Refresh() {
	tx.dirty = true
}

func (tx *Tx) fullMask() uint64 {
	if tx.p.cfg.Pins >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(tx.p.cfg.Pins) - 1
}
