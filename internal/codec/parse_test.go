package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader is a test double implementing the Reader capability interface
// directly over an in-memory byte slice, so codec tests never need a real
// socket.
type fakeReader struct {
	buf []byte
}

func (f *fakeReader) GetByte() (byte, bool, error) {
	if len(f.buf) == 0 {
		return 0, false, nil
	}
	b := f.buf[0]
	f.buf = f.buf[1:]
	return b, true, nil
}

func (f *fakeReader) GetExact(n int) ([]byte, error) {
	if len(f.buf) < n {
		return nil, ErrBrokenPipe
	}
	out := f.buf[:n]
	f.buf = f.buf[n:]
	return out, nil
}

func (f *fakeReader) GetUntil(pattern []byte) ([]byte, error) {
	idx := indexOfTest(f.buf, pattern)
	if idx == -1 {
		return nil, nil
	}
	end := idx + len(pattern)
	out := f.buf[:end]
	f.buf = f.buf[end:]
	return out, nil
}

func indexOfTest(haystack, pattern []byte) int {
	for i := 0; i+len(pattern) <= len(haystack); i++ {
		if string(haystack[i:i+len(pattern)]) == string(pattern) {
			return i
		}
	}
	return -1
}

func TestReadReplySimpleString(t *testing.T) {
	r := &fakeReader{buf: []byte("+OK\r\n")}
	reply, err := ReadReply(r)
	require.NoError(t, err)
	assert.True(t, reply.Equal(NewSimpleString("OK")))
}

func TestReadReplyInteger(t *testing.T) {
	r := &fakeReader{buf: []byte(":42\r\n")}
	reply, err := ReadReply(r)
	require.NoError(t, err)
	assert.True(t, reply.Equal(NewInteger(42)))
}

func TestReadReplyBulkString(t *testing.T) {
	r := &fakeReader{buf: []byte("$5\r\nhello\r\n")}
	reply, err := ReadReply(r)
	require.NoError(t, err)
	assert.True(t, reply.Equal(NewBulkString([]byte("hello"))))
}

func TestReadReplyNullBulkString(t *testing.T) {
	r := &fakeReader{buf: []byte("$-1\r\n")}
	reply, err := ReadReply(r)
	require.NoError(t, err)
	assert.True(t, reply.Equal(NewNullBulkString()))
}

func TestReadReplyArray(t *testing.T) {
	r := &fakeReader{buf: []byte("*2\r\n$2\r\nip\r\n:9\r\n")}
	reply, err := ReadReply(r)
	require.NoError(t, err)
	want := NewArray([]*Reply{NewBulkString([]byte("ip")), NewInteger(9)})
	assert.True(t, reply.Equal(want))
}

func TestReadReplyNullArray(t *testing.T) {
	r := &fakeReader{buf: []byte("*-1\r\n")}
	reply, err := ReadReply(r)
	require.NoError(t, err)
	assert.True(t, reply.Equal(NewNullArray()))
}

func TestReadReplyUpstreamError(t *testing.T) {
	r := &fakeReader{buf: []byte("-ERR wrong number of arguments\r\n")}
	_, err := ReadReply(r)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindUpstream, e.Kind)
	assert.Equal(t, CodeResponseError, e.UpstreamCode)
	assert.Equal(t, "wrong number of arguments", e.Message)
}

func TestReadReplyEmptyBufferIsNoData(t *testing.T) {
	r := &fakeReader{buf: nil}
	_, err := ReadReply(r)
	require.Error(t, err)
	assert.True(t, IsNoData(err))
}

func TestReadReplyUnknownTag(t *testing.T) {
	r := &fakeReader{buf: []byte("!broken\r\n")}
	_, err := ReadReply(r)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindProtocol, e.Kind)
	assert.Contains(t, e.Message, "0x21")
}

func TestSentinelGetMasterAddrByNameRoundTrip(t *testing.T) {
	// The exact byte sequence spec describes for a GET-MASTER-ADDR-BY-NAME
	// reply: a two-element array of (ip, port).
	r := &fakeReader{buf: []byte("*2\r\n$9\r\n127.0.0.1\r\n$4\r\n6380\r\n")}
	reply, err := ReadReplyBlocking(r)
	require.NoError(t, err)
	require.Equal(t, byte(TagArray), reply.Type)
	require.Len(t, reply.Array, 2)
	assert.Equal(t, "127.0.0.1", string(reply.Array[0].Bulk))
	assert.Equal(t, "6380", string(reply.Array[1].Bulk))
}

func TestEncodeRoundTrip(t *testing.T) {
	cases := []*Reply{
		NewSimpleString("PONG"),
		NewInteger(-7),
		NewBulkString([]byte("value")),
		NewNullBulkString(),
		NewArray([]*Reply{NewInteger(1), NewInteger(2)}),
		NewNullArray(),
	}
	for _, want := range cases {
		encoded := want.Encode()
		got, err := ReadReply(&fakeReader{buf: encoded})
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "round trip mismatch for %+v", want)
	}
}
