package intercept

import (
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// ItemLink intercepts linkItem(item, child, parentHuman, slot), which
// attaches an item to another item or puts it in a human's hand. slot is an
// Integer. A suppressed link reports failure.
func (d *Dispatcher) ItemLink(item, child, parentHuman, slot int32) int32 {
	h := d.handle("items", item)
	c := d.handle("items", child)
	p := d.handle("humans", parentHuman)
	s := &luart.Integer{Value: int64(slot)}
	var ret int32
	d.run("ItemLink",
		d.fire("ItemLink", h, c, p, s),
		func(original uintptr) {
			ret = memmod.Int32(d.caller.Call(original,
				memmod.Arg(item), memmod.Arg(child), memmod.Arg(parentHuman), memmod.Arg(int32(s.Value))))
		},
		func() { d.rt.Fire("PostItemLink", h, c, p, s.Value, ret != 0) },
	)
	return ret
}

// ItemComputerInput intercepts a key press on a computer item. character
// is an Integer callbacks may replace.
func (d *Dispatcher) ItemComputerInput(item int32, character uint32) {
	h := d.handle("items", item)
	ch := &luart.Integer{Value: int64(character)}
	d.run("ItemComputerInput",
		d.fire("ItemComputerInput", h, ch),
		func(original uintptr) { d.caller.Call(original, memmod.Arg(item), uintptr(uint32(ch.Value))) },
		func() { d.rt.Fire("PostItemComputerInput", h, ch.Value) },
	)
}

func (d *Dispatcher) GrenadeExplode(item int32) { d.indexed("GrenadeExplode", "items", item) }
