package hostfuncs

import (
	"bytes"
	"strings"

	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
)

// DefaultMaxLogBytes bounds a single guest log read.
const DefaultMaxLogBytes = 64

// OutOfRangePlaceholder replaces guest text that could not be read in full.
const OutOfRangePlaceholder = "<truncated/out-of-range>"

// ReadGuestString reads a NUL-terminated string at offset, reading at most
// maxLen bytes and never past the end of memory.
//
// An offset outside memory yields the placeholder text and OutOfRange. A read
// window that crosses the end of memory is clamped; if no terminator is found
// before the end, the text read so far is returned with the placeholder
// appended. Both cases also return a GuestMemoryOutOfBounds error for logging.
// A window that hits maxLen before a terminator is Truncated but not an error.
func ReadGuestString(mem GuestMemory, offset, maxLen uint32) (entities.GuestLogMessage, error) {
	msg := entities.GuestLogMessage{Offset: offset}

	var size uint32
	if mem != nil {
		size = mem.Size()
	}

	if uint64(offset) >= uint64(size) {
		msg.Text = OutOfRangePlaceholder
		msg.OutOfRange = true
		return msg, &sdkErrors.GuestMemoryOutOfBounds{Offset: offset, Length: maxLen, Size: size}
	}

	end := uint64(offset) + uint64(maxLen)
	clamped := false
	if end > uint64(size) {
		end = uint64(size)
		clamped = true
	}

	buf, ok := mem.Read(offset, uint32(end-uint64(offset))) //nolint:gosec // G115: bounded by size above
	if !ok {
		msg.Text = OutOfRangePlaceholder
		msg.OutOfRange = true
		return msg, &sdkErrors.GuestMemoryOutOfBounds{Offset: offset, Length: maxLen, Size: size}
	}

	if i := bytes.IndexByte(buf, 0); i >= 0 {
		msg.Text = decode(buf[:i])
		return msg, nil
	}

	msg.Truncated = true
	if clamped {
		msg.Text = decode(buf) + OutOfRangePlaceholder
		return msg, &sdkErrors.GuestMemoryOutOfBounds{Offset: offset, Length: maxLen, Size: size}
	}
	msg.Text = decode(buf)
	return msg, nil
}

// decode copies guest bytes into a string, replacing invalid UTF-8.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
