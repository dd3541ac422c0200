package peripherals

import "gpiosim/core"

// Reader adapts a projection of port state into a register read callback.
// The projection runs inside one port transaction, so read-to-clear
// registers may also mutate through tx.
func Reader(p *core.Port, fn func(tx *core.Tx) uint32) func() uint32 {
	return func() uint32 {
		var v uint32
		p.Update(func(tx *core.Tx) { v = fn(tx) })
		return v
	}
}

// Writer adapts a port mutation into a register write callback. Interrupt
// lines are recomputed once after fn returns.
func Writer(p *core.Port, fn func(tx *core.Tx, value uint32)) func(uint32) {
	return func(value uint32) {
		p.Update(func(tx *core.Tx) { fn(tx, value) })
	}
}

// EachPin calls fn for every pin of tx whose bit is set in value
func EachPin(tx *core.Tx, value uint32, fn func(pin int)) {
	for i := 0; i < tx.Len() && i < 32; i++ {
		if value&(1<<uint(i)) != 0 {
			fn(i)
		}
	}
}

// PinBits builds a word from a per-pin predicate
func PinBits(tx *core.Tx, fn func(pin int) bool) uint32 {
	var v uint32
	for i := 0; i < tx.Len() && i < 32; i++ {
		if fn(i) {
			v |= 1 << uint(i)
		}
	}
	return v
}
