package kv

// TableKind is the byte tag identifying a category of tables (glossary:
// "Table kind"): vertex rows, edge rows, one of several index kinds, schema
// metadata, or a reserved counter kind. Prefixing keys with it makes every
// kind-restricted scan a contiguous range (spec §4.1).
type TableKind byte

// EncodeKey produces an ordered byte key: kind_byte || id_bytes (spec §4.1
// "encode"). Concatenation, not an encoding scheme of its own, is what keeps
// byte-lexicographic order meaningful across ids of the same kind.
func EncodeKey(kind TableKind, id []byte) []byte {
	out := make([]byte, 1+len(id))
	out[0] = byte(kind)
	copy(out[1:], id)
	return out
}

// DecodeKey inverts EncodeKey. Fails with ErrMalformedKey on empty input.
func DecodeKey(b []byte) (kind TableKind, id []byte, err error) {
	if len(b) == 0 {
		return 0, nil, Wrap(ErrMalformedKey, "DecodeKey", errDecodeEmptyKey)
	}
	return TableKind(b[0]), b[1:], nil
}

var errDecodeEmptyKey = errEmptyKey{}

type errEmptyKey struct{}

func (errEmptyKey) Error() string { return "key is empty" }

// ScanStart returns the inclusive lower bound for a kind-restricted scan:
// EncodeKey(kind, id) if id is non-nil, else the single-byte kind prefix.
func ScanStart(kind TableKind, id []byte) []byte {
	if id != nil {
		return EncodeKey(kind, id)
	}
	return []byte{byte(kind)}
}

// ScanEnd returns the exclusive upper bound for a kind-restricted scan:
// EncodeKey(kind, id) if id is non-nil, else the single-byte (kind+1).
// Callers must treat the result as exclusive. If kind is 0xFF and id is nil,
// the returned bound is "unbounded above" (represented as nil).
func ScanEnd(kind TableKind, id []byte) []byte {
	if id != nil {
		return EncodeKey(kind, id)
	}
	if kind == 0xFF {
		return nil
	}
	return []byte{byte(kind) + 1}
}

// PrefixEnd returns the smallest byte sequence strictly greater than every
// key with the given prefix: increment the last non-0xFF byte and truncate;
// if every byte is 0xFF, there is no such finite bound and nil ("unbounded
// above") is returned (spec §4.1, glossary "Prefix end").
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
