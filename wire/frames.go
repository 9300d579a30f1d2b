package wire

// Command opcodes, sent by the host and dispatched by the guest.
const (
	OpMakeInt    byte = 'I' // argument is the value
	OpMakeBytes  byte = 'B' // argument is the length, payload is raw bytes
	OpMakeStr    byte = 'S' // argument is the length, payload is UTF-8 text
	OpMakeTuple  byte = 'T' // argument is the count, payload is handles
	OpMakeGlobal byte = 'G' // argument is the length, payload is a dotted name
	OpMakeRemote byte = 'R' // argument is a handle owned by the sender
	OpCall       byte = 'C' // argument is the arg count, payload is callable + args
	OpStarcall   byte = 'X' // argument is ignored, payload is callable + args + kwargs
	OpLambda     byte = 'L' // argument is a handle to a remote proxy
	OpDup        byte = 'D' // argument is the handle to alias
	OpGetInt     byte = 'i' // argument is the handle
	OpGetBytes   byte = 'b' // argument is the handle
	OpForget     byte = '~' // argument is the handle; no response
)

// Frames sent by the guest; OpForget doubles as the guest's forget notice.
const (
	OpCallback  byte = 'c' // invoke a sender-exported callable
	OpReturn    byte = 'r' // terminal: argument is the result
	OpException byte = 'e' // terminal: argument is a handle to the failure
)

// StarcallArg is the fixed argument of a starcall frame; the real
// operands travel in the payload.
const StarcallArg int64 = -1

// ReadyMarker is written by the guest immediately after startup.
const ReadyMarker byte = '+'

// TerminationSentinel is the return argument that ends the top-level
// loop. Any other terminal condition at top level is an integrity
// failure. Representing it on the wire requires an integer width of at
// least six bytes.
const TerminationSentinel int64 = 0xD1EA112EAD1

// ExitStatusPeerLost is the process exit status used when the inbound
// stream truncates mid-frame.
const ExitStatusPeerLost = 125

// Integer width limits for the negotiated fixed-width encoding.
const (
	MinIntSize = 1
	MaxIntSize = 8
)

// MaxPayload caps length-prefixed payload reads (16 MB).
const MaxPayload = 16 << 20
