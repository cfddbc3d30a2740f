package intercept

import (
	"unsafe"

	"github.com/sliverarmory/rosaserver/memmod"
)

// printfFormat replaces the format of a captured printf. The line reaches
// the host already formatted.
var printfFormat = [...]byte{'%', 's', 0}

// ConsolePuts intercepts the host writing a line to its console. Callbacks
// see it as ConsoleOutput; a suppressed line is not printed.
func (d *Dispatcher) ConsolePuts(line uintptr) int32 {
	text := memmod.CStringFromPtr(line)
	ret := int32(1)
	d.run("ConsolePuts",
		d.fire("ConsoleOutput", text),
		func(original uintptr) { ret = memmod.Int32(d.caller.Call(original, line)) },
		d.firePost("ConsoleOutput", text),
	)
	return ret
}

// ConsolePrintf intercepts __printf_chk(flag, format, ...). The native
// entry point formats the arguments into text first.
func (d *Dispatcher) ConsolePrintf(flag int32, text uintptr) int32 {
	s := memmod.CStringFromPtr(text)
	ret := int32(len(s))
	d.run("ConsolePrintf",
		d.fire("ConsoleOutput", s),
		func(original uintptr) {
			ret = memmod.Int32(d.caller.Call(original, memmod.Arg(flag), uintptr(unsafe.Pointer(&printfFormat[0])), text))
		},
		d.firePost("ConsoleOutput", s),
	)
	return ret
}
