package resp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderReadsCommandArray(t *testing.T) {
	raw := "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"
	r := NewReader(bytes.NewBufferString(raw), DefaultLimits)

	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	require.Equal(t, []string{"GET", "foo"}, cmd)
}

func TestReaderReadsInlineCommand(t *testing.T) {
	raw := "PING\r\n"
	r := NewReader(bytes.NewBufferString(raw), DefaultLimits)

	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	require.Equal(t, []string{"PING"}, cmd)
}

func TestReaderRejectsOversizedBulk(t *testing.T) {
	raw := "*1\r\n$10\r\n0123456789\r\n"
	r := NewReader(bytes.NewBufferString(raw), Limits{MaxBulkLen: 4, MaxArity: 10})

	_, err := r.ReadCommand()
	require.Error(t, err)
	var protoErr *ErrProtocol
	require.ErrorAs(t, err, &protoErr)
}

func TestWriterRESP2DowngradesNullAndBoolean(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Protocol = RESP2

	require.NoError(t, w.WriteValue(Null()))
	require.NoError(t, w.WriteValue(Boolean(true)))
	require.NoError(t, w.Flush())

	require.Equal(t, "$-1\r\n:1\r\n", buf.String())
}

func TestWriterRESP3EmitsNativeTypes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Protocol = RESP3

	require.NoError(t, w.WriteValue(Null()))
	require.NoError(t, w.WriteValue(Boolean(false)))
	require.NoError(t, w.Flush())

	require.Equal(t, "_\r\n#f\r\n", buf.String())
}

func TestWriterEncodesArrayOfBulkStrings(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteValue(Array(BulkString("a"), BulkString("bb"))))
	require.NoError(t, w.Flush())

	require.Equal(t, "*2\r\n$1\r\na\r\n$2\r\nbb\r\n", buf.String())
}
