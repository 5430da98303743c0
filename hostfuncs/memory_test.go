package hostfuncs

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
)

// fakeMemory is a GuestMemory over a byte slice with wazero's bounds rules.
type fakeMemory []byte

func (m fakeMemory) Size() uint32 { return uint32(len(m)) }

func (m fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m)) {
		return nil, false
	}
	return m[offset:end], true
}

func memoryWith(size int, at int, text string) fakeMemory {
	m := make(fakeMemory, size)
	copy(m[at:], text)
	return m
}

func TestReadGuestString(t *testing.T) {
	tests := []struct {
		name       string
		mem        GuestMemory
		offset     uint32
		maxLen     uint32
		want       string
		truncated  bool
		outOfRange bool
		wantErr    bool
	}{
		{
			name:   "terminated string",
			mem:    memoryWith(256, 16, "filter ready\x00"),
			offset: 16, maxLen: DefaultMaxLogBytes,
			want: "filter ready",
		},
		{
			name:   "empty string",
			mem:    memoryWith(256, 0, "\x00"),
			offset: 0, maxLen: DefaultMaxLogBytes,
			want: "",
		},
		{
			name:   "longer than the read bound",
			mem:    memoryWith(256, 0, strings.Repeat("a", 100)),
			offset: 0, maxLen: DefaultMaxLogBytes,
			want: strings.Repeat("a", 64), truncated: true,
		},
		{
			name:   "offset past end of memory",
			mem:    memoryWith(256, 0, ""),
			offset: 256 + 1000, maxLen: DefaultMaxLogBytes,
			want: OutOfRangePlaceholder, outOfRange: true, wantErr: true,
		},
		{
			name:   "offset equal to memory size",
			mem:    memoryWith(256, 0, ""),
			offset: 256, maxLen: DefaultMaxLogBytes,
			want: OutOfRangePlaceholder, outOfRange: true, wantErr: true,
		},
		{
			name:   "unterminated text at end of memory",
			mem:    memoryWith(32, 28, "tail"),
			offset: 28, maxLen: DefaultMaxLogBytes,
			want: "tail" + OutOfRangePlaceholder, truncated: true, wantErr: true,
		},
		{
			name:   "terminator found before end of memory",
			mem:    memoryWith(32, 26, "ok\x00"),
			offset: 26, maxLen: DefaultMaxLogBytes,
			want: "ok",
		},
		{
			name:   "no memory exported",
			mem:    nil,
			offset: 0, maxLen: DefaultMaxLogBytes,
			want: OutOfRangePlaceholder, outOfRange: true, wantErr: true,
		},
		{
			name:   "invalid utf-8 is replaced",
			mem:    memoryWith(64, 0, "a\xffb\x00"),
			offset: 0, maxLen: DefaultMaxLogBytes,
			want: "a�b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ReadGuestString(tt.mem, tt.offset, tt.maxLen)

			assert.Equal(t, tt.want, msg.Text)
			assert.Equal(t, tt.truncated, msg.Truncated)
			assert.Equal(t, tt.outOfRange, msg.OutOfRange)
			assert.Equal(t, tt.offset, msg.Offset)
			if tt.wantErr {
				var oob *sdkErrors.GuestMemoryOutOfBounds
				require.True(t, errors.As(err, &oob))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReadGuestString_DoesNotAliasMemory(t *testing.T) {
	mem := memoryWith(64, 0, "abc\x00")
	msg, err := ReadGuestString(mem, 0, DefaultMaxLogBytes)
	require.NoError(t, err)

	mem[0] = 'z'
	assert.Equal(t, "abc", msg.Text)
}
