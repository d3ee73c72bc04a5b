package capbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDNSNameUncompressed(t *testing.T) {
	b := NewBuffer()
	// 3www7example3com0
	b.Append([]byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0})
	r := b.NewReader(0, b.End())

	name, err := r.ReadDNSName(0)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", name)
}

func TestReadDNSNameCompressionPointer(t *testing.T) {
	b := NewBuffer()
	// question name at offset 0: 3www7example3com0 (len 17 -> next at 17)
	b.Append([]byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0})
	// answer name at offset 17: pointer back to offset 0
	b.Append([]byte{0xC0, 0x00})
	r := b.NewReader(17, b.End())

	name, err := r.ReadDNSName(0)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", name)
}

func TestReadDNSNameSelfLoopTerminates(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte{0xC0, 0x00}) // points at itself
	r := b.NewReader(0, b.End())

	done := make(chan struct{})
	go func() {
		_, _ = r.ReadDNSName(0)
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	// the receive below blocks until ReadDNSName returns; a decoder that
	// looped forever would hang the test here.
	<-done
}

func encodeNetBIOS(name string) []byte {
	padded := name
	for len(padded) < 16 {
		padded += " "
	}
	out := make([]byte, 0, 32)
	for i := 0; i < 16; i++ {
		c := padded[i]
		out = append(out, 'A'+(c>>4), 'A'+(c&0x0F))
	}
	return out
}

func TestReadNetBIOSName(t *testing.T) {
	b := NewBuffer()
	b.Append(encodeNetBIOS("FOO"))
	r := b.NewReader(0, b.End())
	name, err := r.ReadNetBIOSName()
	require.NoError(t, err)
	assert.Equal(t, "FOO", name)
}
