// Package resource provides handle tables for host-side values.
//
// A handle is a small positive integer naming a slot. Handle 0 is reserved
// and never returned by a successful insert, so callers can use it as
// "no handle".
//
// # Slot Reuse
//
// Slots are reused first-fit: an insert always takes the lowest-numbered
// free slot, and only grows the table when no hole exists.
//
//	table := resource.NewTable[*Context]()
//
//	a := table.Insert(ctxA) // 1
//	b := table.Insert(ctxB) // 2
//	table.Remove(a)
//	c := table.Insert(ctxC) // 1 again
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	type gauge struct{ n int }
//
//	func (g *gauge) OnResourceEvent(e resource.Event) {
//	    switch e.Type {
//	    case resource.EventCreated:
//	        g.n++
//	    case resource.EventDropped:
//	        g.n--
//	    }
//	}
//
//	table.Subscribe(&gauge{})
//
// Removal only forgets the value; releasing what it owns is the caller's job.
package resource
