package codec

// Type-tag bytes for the five KV reply types.
const (
	TagSimpleString byte = '+'
	TagError        byte = '-'
	TagInteger      byte = ':'
	TagBulkString   byte = '$'
	TagArray        byte = '*'
)

// Reply is the decoded form of any of the five KV reply types. Only the
// fields relevant to Type are meaningful.
type Reply struct {
	Type byte

	// TagSimpleString
	Str string

	// TagInteger
	Int int64

	// TagBulkString
	Bulk     []byte
	BulkNull bool

	// TagArray
	Array     []*Reply
	ArrayNull bool
}

// NewSimpleString builds a simple-string reply.
func NewSimpleString(s string) *Reply { return &Reply{Type: TagSimpleString, Str: s} }

// NewInteger builds an integer reply.
func NewInteger(n int64) *Reply { return &Reply{Type: TagInteger, Int: n} }

// NewBulkString builds a bulk-string reply.
func NewBulkString(b []byte) *Reply { return &Reply{Type: TagBulkString, Bulk: b} }

// NewNullBulkString builds the null bulk-string reply ($-1\r\n).
func NewNullBulkString() *Reply { return &Reply{Type: TagBulkString, BulkNull: true} }

// NewArray builds an array reply.
func NewArray(items []*Reply) *Reply { return &Reply{Type: TagArray, Array: items} }

// NewNullArray builds the null array reply (*-1\r\n).
func NewNullArray() *Reply { return &Reply{Type: TagArray, ArrayNull: true} }

// Equal performs a deep, type-aware comparison used by round-trip tests.
func (r *Reply) Equal(other *Reply) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Type != other.Type {
		return false
	}
	switch r.Type {
	case TagSimpleString:
		return r.Str == other.Str
	case TagInteger:
		return r.Int == other.Int
	case TagBulkString:
		if r.BulkNull != other.BulkNull {
			return false
		}
		if r.BulkNull {
			return true
		}
		return string(r.Bulk) == string(other.Bulk)
	case TagArray:
		if r.ArrayNull != other.ArrayNull {
			return false
		}
		if r.ArrayNull {
			return true
		}
		if len(r.Array) != len(other.Array) {
			return false
		}
		for i := range r.Array {
			if !r.Array[i].Equal(other.Array[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
