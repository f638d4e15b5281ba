package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Encode serializes r back to wire bytes. It exists primarily so codec
// round-trip tests can assert decode(encode(x)) == x; production code
// only ever encodes the inline commands below, since the concentrator is
// opaque to client payloads.
func (r *Reply) Encode() []byte {
	switch r.Type {
	case TagSimpleString:
		return []byte("+" + r.Str + "\r\n")
	case TagInteger:
		return []byte(":" + strconv.FormatInt(r.Int, 10) + "\r\n")
	case TagBulkString:
		if r.BulkNull {
			return []byte("$-1\r\n")
		}
		var b strings.Builder
		fmt.Fprintf(&b, "$%d\r\n", len(r.Bulk))
		b.Write(r.Bulk)
		b.WriteString("\r\n")
		return []byte(b.String())
	case TagArray:
		if r.ArrayNull {
			return []byte("*-1\r\n")
		}
		var b strings.Builder
		fmt.Fprintf(&b, "*%d\r\n", len(r.Array))
		for _, item := range r.Array {
			b.Write(item.Encode())
		}
		return []byte(b.String())
	default:
		return nil
	}
}

// EncodeUpstreamError serializes an upstream-style error reply, e.g. for
// test doubles that need to emit "-ERR foo\r\n".
func EncodeUpstreamError(code, message string) []byte {
	if message == "" {
		return []byte("-" + code + "\r\n")
	}
	return []byte("-" + code + " " + message + "\r\n")
}

// EncodeInline builds an inline command line: the parts joined by a
// single space and terminated by CRLF. Per spec, the commands this
// concentrator issues (PING, GET, SUBSCRIBE, SENTINEL
// GET-MASTER-ADDR-BY-NAME) are emitted this way rather than as RESP
// multi-bulk requests.
func EncodeInline(parts ...string) []byte {
	return []byte(strings.Join(parts, " ") + "\r\n")
}

// EncodePing builds the PING command.
func EncodePing() []byte { return EncodeInline("PING") }

// EncodeGet builds a GET command for key.
func EncodeGet(key string) []byte { return EncodeInline("GET", key) }

// EncodeSubscribe builds a SUBSCRIBE command for channel.
func EncodeSubscribe(channel string) []byte { return EncodeInline("SUBSCRIBE", channel) }

// EncodeSentinelGetMasterAddrByName builds the Sentinel master-discovery
// command for the given replication group name.
func EncodeSentinelGetMasterAddrByName(group string) []byte {
	return EncodeInline("SENTINEL", "GET-MASTER-ADDR-BY-NAME", group)
}
