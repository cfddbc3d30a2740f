package intercept

import (
	"net/netip"

	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// ServerReceive intercepts the host draining its socket. A suppressed
// receive reports nothing read.
func (d *Dispatcher) ServerReceive() int32 {
	var ret int32
	d.run("ServerReceive",
		d.fire("ServerReceive"),
		func(original uintptr) { ret = memmod.Int32(d.caller.Call(original)) },
		d.firePost("ServerReceive"),
	)
	return ret
}

func (d *Dispatcher) ServerSend() { d.plain("ServerSend") }

// SendConnectResponse intercepts serverSendConnectResponse(address, port,
// unk, message), the reply to a client asking to join. address is an IPv4
// address with the first octet in the high byte.
func (d *Dispatcher) SendConnectResponse(address, port uint32, unk int32, message uintptr) {
	ip := ipv4(address)
	text := memmod.CStringFromPtr(message)
	d.run("SendConnectResponse",
		d.fire("SendConnectResponse", ip, int64(port), text),
		func(original uintptr) {
			d.caller.Call(original, uintptr(address), uintptr(port), memmod.Arg(unk), message)
		},
		d.firePost("SendConnectResponse", ip, int64(port), text),
	)
}

// AccountTicket intercepts createAccountByJoinTicket(identifier, ticket),
// which finds or creates the account a joining client presented. Callbacks
// may rewrite both values; PostAccountTicket gets the account or nil. A
// suppressed lookup finds nothing.
func (d *Dispatcher) AccountTicket(identifier int32, ticket uint32) int32 {
	id := &luart.Integer{Value: int64(identifier)}
	tk := &luart.UnsignedInteger{Value: uint64(ticket)}
	account := int32(-1)
	d.run("AccountTicket",
		d.fire("AccountTicket", id, tk),
		func(original uintptr) {
			account = memmod.Int32(d.caller.Call(original, memmod.Arg(int32(id.Value)), uintptr(uint32(tk.Value))))
		},
		func() { d.rt.Fire("PostAccountTicket", d.handle("accounts", account)) },
	)
	return account
}

func ipv4(address uint32) string {
	return netip.AddrFrom4([4]byte{
		byte(address >> 24),
		byte(address >> 16),
		byte(address >> 8),
		byte(address),
	}).String()
}
