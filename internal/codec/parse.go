package codec

import (
	"strconv"
	"strings"
)

// Reader is the capability interface the codec needs from a transport. It
// is satisfied structurally by *netstream.Stream and by test doubles; the
// codec never imports netstream (see DESIGN.md, internal/netstream).
type Reader interface {
	// GetByte returns the next byte, or ok=false if none is available
	// right now (the stream would block and its internal buffer is
	// empty). err is non-nil only for a genuine I/O failure.
	GetByte() (b byte, ok bool, err error)
	// GetExact returns exactly n bytes, retrying internally until they
	// arrive or a hard error (including broken pipe) occurs.
	GetExact(n int) ([]byte, error)
	// GetUntil returns the bytes up to and including the first match of
	// pattern, or an empty (nil) slice with a nil error if the pattern
	// has not yet arrived — never an error for "not there yet".
	GetUntil(pattern []byte) ([]byte, error)
}

var crlf = []byte("\r\n")

// ReadReply decodes exactly one reply from r. If no reply is available at
// all (the type-tag byte itself hasn't arrived on a non-blocking stream),
// it returns ErrNoData. Once a tag byte has been consumed the read is
// considered committed and blocks (retrying internally) until the rest of
// the reply arrives or a hard error occurs — a partially consumed reply
// must never be abandoned, or stream framing would desync.
func ReadReply(r Reader) (*Reply, error) {
	tag, ok, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoData
	}

	switch tag {
	case TagSimpleString:
		s, err := readLine(r)
		if err != nil {
			return nil, err
		}
		return NewSimpleString(s), nil
	case TagError:
		s, err := readLine(r)
		if err != nil {
			return nil, err
		}
		return nil, NewUpstreamError(s)
	case TagInteger:
		n, err := readIntegerBody(r)
		if err != nil {
			return nil, err
		}
		return NewInteger(n), nil
	case TagBulkString:
		b, null, err := readBulkStringBody(r)
		if err != nil {
			return nil, err
		}
		if null {
			return NewNullBulkString(), nil
		}
		return NewBulkString(b), nil
	case TagArray:
		items, null, err := readArrayBody(r)
		if err != nil {
			return nil, err
		}
		if null {
			return NewNullArray(), nil
		}
		return NewArray(items), nil
	default:
		return nil, NewUnknownTypeTagError(tag)
	}
}

// ReadReplyBlocking calls ReadReply, retrying on ErrNoData, for call sites
// where the absence of a reply is not itself meaningful (a query issued
// over a stream known to carry a response shortly, e.g. the Sentinel
// master-address query or a SUBSCRIBE acknowledgement).
func ReadReplyBlocking(r Reader) (*Reply, error) {
	for {
		reply, err := ReadReply(r)
		if err != nil {
			if IsNoData(err) {
				continue
			}
			return nil, err
		}
		return reply, nil
	}
}

// readLine reads bytes up to CRLF, retrying until the line is complete,
// and returns it without the trailing CRLF.
func readLine(r Reader) (string, error) {
	for {
		buf, err := r.GetUntil(crlf)
		if err != nil {
			return "", err
		}
		if len(buf) > 0 {
			return string(buf[:len(buf)-len(crlf)]), nil
		}
	}
}

func readIntegerBody(r Reader) (int64, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, NewProtocolError("invalid integer %q: %v", line, err)
	}
	return n, nil
}

func readLength(r Reader) (int64, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, NewProtocolError("invalid length %q: %v", line, err)
	}
	return n, nil
}

func readBulkStringBody(r Reader) ([]byte, bool, error) {
	length, err := readLength(r)
	if err != nil {
		return nil, false, err
	}
	if length == -1 {
		return nil, true, nil
	}
	if length < -1 {
		return nil, false, NewProtocolError("invalid bulk string length %d", length)
	}

	data, err := r.GetExact(int(length))
	if err != nil {
		return nil, false, err
	}
	terminator, err := r.GetExact(2)
	if err != nil {
		return nil, false, err
	}
	if terminator[0] != crlf[0] || terminator[1] != crlf[1] {
		return nil, false, NewProtocolError("bulk string missing CRLF terminator")
	}
	return data, false, nil
}

func readArrayBody(r Reader) ([]*Reply, bool, error) {
	length, err := readLength(r)
	if err != nil {
		return nil, false, err
	}
	if length == -1 {
		return nil, true, nil
	}
	if length < -1 {
		return nil, false, NewProtocolError("invalid array length %d", length)
	}

	items := make([]*Reply, 0, length)
	for i := int64(0); i < length; i++ {
		tag, ok, err := r.GetByte()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			// Committed to this array: keep retrying for the next
			// element's tag byte rather than surfacing NoData.
			i--
			continue
		}

		item, err := readReplyBody(r, tag)
		if err != nil {
			return nil, false, err
		}
		items = append(items, item)
	}
	return items, false, nil
}

// readReplyBody parses the body of a reply whose tag byte has already been
// consumed (used recursively by readArrayBody).
func readReplyBody(r Reader, tag byte) (*Reply, error) {
	switch tag {
	case TagSimpleString:
		s, err := readLine(r)
		if err != nil {
			return nil, err
		}
		return NewSimpleString(s), nil
	case TagError:
		s, err := readLine(r)
		if err != nil {
			return nil, err
		}
		return nil, NewUpstreamError(s)
	case TagInteger:
		n, err := readIntegerBody(r)
		if err != nil {
			return nil, err
		}
		return NewInteger(n), nil
	case TagBulkString:
		b, null, err := readBulkStringBody(r)
		if err != nil {
			return nil, err
		}
		if null {
			return NewNullBulkString(), nil
		}
		return NewBulkString(b), nil
	case TagArray:
		items, null, err := readArrayBody(r)
		if err != nil {
			return nil, err
		}
		if null {
			return NewNullArray(), nil
		}
		return NewArray(items), nil
	default:
		return nil, NewUnknownTypeTagError(tag)
	}
}
