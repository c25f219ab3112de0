package display

// Slot cycle timing. The displayed route is a function of the clock alone,
// so a late tick corrects itself on the next one.
const (
	CycleMs   = 60000
	SlotMs    = 10000
	SlotCount = CycleMs / SlotMs
)

// ActiveSlot returns the slot shown at nowMs, in [0, SlotCount).
func ActiveSlot(nowMs int64) int {
	return int(mod(nowMs, CycleMs) / SlotMs)
}
