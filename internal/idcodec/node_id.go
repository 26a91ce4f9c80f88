package idcodec

import (
	"fmt"

	"github.com/standardbeagle/codegraph-core/internal/types"
	"lukechampine.com/blake3"
)

// EncodeNodeID encodes a types.NodeID to its base-63 textual form — the
// canonical encoding for node identifiers handed to external consumers
// (chunk emitter, storage ports).
func EncodeNodeID(id types.NodeID) string {
	return Encode(uint64(id))
}

// DecodeNodeID decodes a base-63 string back to a types.NodeID.
func DecodeNodeID(encoded string) (types.NodeID, error) {
	v, err := Decode(encoded)
	if err != nil {
		return 0, err
	}
	return types.NodeID(v), nil
}

// EncodeFileID encodes a types.FileID to its base-63 textual form.
func EncodeFileID(id types.FileID) string {
	return Encode(uint64(id))
}

// DecodeFileID decodes a base-63 string back to a types.FileID, rejecting
// values that overflow the 32-bit FileID range.
func DecodeFileID(encoded string) (types.FileID, error) {
	v, err := Decode(encoded)
	if err != nil {
		return 0, err
	}
	if v > uint64(^types.FileID(0)) {
		return 0, ErrOverflow
	}
	return types.FileID(v), nil
}

// NewNodeID derives a process-stable node identifier:
// hash(repo_id, fqn, span_start). The file path is deliberately NOT part
// of the key — a symbol's identity follows its FQN, so moving a file
// without changing its content leaves every node id intact; the path lives
// only in Node.File. Using the span start (rather than the full span)
// means a node also keeps its identity across edits that only change where
// it ends, e.g. adding trailing statements to a function body.
func NewNodeID(repoID, fqn string, spanStartLine, spanStartCol int) types.NodeID {
	input := fmt.Sprintf("%s\x00%s\x00%d:%d", repoID, fqn, spanStartLine, spanStartCol)
	sum := blake3.Sum256([]byte(input))
	var v uint64
	for _, b := range sum[:8] {
		v = v<<8 | uint64(b)
	}
	return types.NodeID(v)
}

// ContentHash returns the BLAKE3 hash of content, hex-encoded.
func ContentHash(content []byte) string {
	sum := blake3.Sum256(content)
	return fmt.Sprintf("%x", sum[:])
}
