package entities

// GuestLogMessage is a diagnostic emitted by the sandboxed module through env.log.
type GuestLogMessage struct {
	// Text is the decoded message, or a placeholder when the read was refused.
	Text string

	// Offset is the guest memory offset the message was read from.
	// Zero for the no-argument form.
	Offset uint32

	// Truncated is set when the message hit the length bound or the end of memory
	// before a terminator byte.
	Truncated bool

	// OutOfRange is set when the offset lies outside guest memory and nothing was read.
	OutOfRange bool
}
