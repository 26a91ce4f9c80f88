// Package chunk segments the IR into typed chunks — the unit of embedding
// and lexical indexing — and streams them to the storage ports without
// retaining them in memory. Lexical records carry identifier tokens
// normalized by Porter2 stemming.
package chunk

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Kind is a chunk's type.
type Kind string

const (
	KindRepo      Kind = "repo"
	KindProject   Kind = "project"
	KindModule    Kind = "module"
	KindFile      Kind = "file"
	KindClass     Kind = "class"
	KindFunction  Kind = "function"
	KindDocstring Kind = "docstring"
	KindHeader    Kind = "header"
	KindSkeleton  Kind = "skeleton"
	KindUsage     Kind = "usage"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
)

// Chunk is one typed segment of the IR.
type Chunk struct {
	ID       string            `json:"id"`
	ParentID string            `json:"parent_id,omitempty"`
	Kind     Kind              `json:"kind"`
	Span     types.Span        `json:"text_span"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunker segments IRDocuments at the configured granularity.
type Chunker struct {
	granularity config.ChunkGranularity
}

func NewChunker(granularity config.ChunkGranularity) *Chunker {
	return &Chunker{granularity: granularity}
}

func chunkID(kind Kind, subject string) string {
	return string(kind) + ":" + subject
}

// ChunkDocument yields the chunks for one file's IRDocument. content is the
// file's source bytes, used to slice chunk text by span. The emitter calls
// the yield function per chunk so nothing accumulates here.
func (c *Chunker) ChunkDocument(doc *types.IRDocument, content []byte, yield func(Chunk) error) error {
	lines := strings.Split(string(content), "\n")

	fileChunkID := chunkID(KindFile, doc.File)
	fileChunk := Chunk{
		ID:   fileChunkID,
		Kind: KindFile,
		Span: types.Span{File: doc.File, StartLine: 1, EndLine: len(lines)},
		Text: headOf(lines, 40),
		Metadata: map[string]string{
			"path":        doc.File,
			"fingerprint": doc.Fingerprint.ContentHash,
		},
	}
	if err := yield(fileChunk); err != nil {
		return err
	}
	if c.granularity == config.GranularityFile {
		return nil
	}

	for _, n := range doc.Nodes {
		kind, ok := chunkKindFor(n.Kind)
		if !ok {
			continue
		}
		text := sliceSpan(lines, n.Span)
		if text == "" {
			continue
		}
		ch := Chunk{
			ID:       chunkID(kind, idcodec.EncodeNodeID(n.ID)),
			ParentID: fileChunkID,
			Kind:     kind,
			Span:     n.Span,
			Text:     text,
			Metadata: map[string]string{
				"fqn":  n.FQN,
				"name": n.Name,
				"path": doc.File,
			},
		}
		if err := yield(ch); err != nil {
			return err
		}

		// A leading comment block directly above a definition becomes its
		// docstring chunk.
		if doc := docstringAbove(lines, n.Span); doc != "" {
			dc := Chunk{
				ID:       chunkID(KindDocstring, idcodec.EncodeNodeID(n.ID)),
				ParentID: ch.ID,
				Kind:     KindDocstring,
				Span:     types.Span{File: n.File, StartLine: n.Span.StartLine - strings.Count(doc, "\n") - 1, EndLine: n.Span.StartLine - 1},
				Text:     doc,
				Metadata: map[string]string{"fqn": n.FQN},
			}
			if err := yield(dc); err != nil {
				return err
			}
		}
	}
	return nil
}

// ChunkSkeleton emits the file's skeleton chunk: every definition's first
// line, concatenated — a cheap structural summary for retrieval.
func (c *Chunker) ChunkSkeleton(doc *types.IRDocument, content []byte, yield func(Chunk) error) error {
	lines := strings.Split(string(content), "\n")
	var b strings.Builder
	for _, n := range doc.Nodes {
		if _, ok := chunkKindFor(n.Kind); !ok {
			continue
		}
		if n.Span.StartLine >= 1 && n.Span.StartLine <= len(lines) {
			b.WriteString(strings.TrimRight(lines[n.Span.StartLine-1], " \t"))
			b.WriteByte('\n')
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return yield(Chunk{
		ID:       chunkID(KindSkeleton, doc.File),
		ParentID: chunkID(KindFile, doc.File),
		Kind:     KindSkeleton,
		Span:     types.Span{File: doc.File, StartLine: 1, EndLine: len(lines)},
		Text:     b.String(),
		Metadata: map[string]string{"path": doc.File},
	})
}

func chunkKindFor(k types.NodeKind) (Kind, bool) {
	switch k {
	case types.NodeClass, types.NodeInterface, types.NodeEnum:
		return KindClass, true
	case types.NodeFunction, types.NodeMethod:
		return KindFunction, true
	case types.NodeVariable, types.NodeField:
		return KindVariable, true
	default:
		return "", false
	}
}

func sliceSpan(lines []string, s types.Span) string {
	if s.StartLine < 1 || s.StartLine > len(lines) {
		return ""
	}
	end := s.EndLine
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[s.StartLine-1:end], "\n")
}

func headOf(lines []string, n int) string {
	if len(lines) < n {
		n = len(lines)
	}
	return strings.Join(lines[:n], "\n")
}

// docstringAbove collects the contiguous comment lines immediately above a
// definition's start line.
func docstringAbove(lines []string, s types.Span) string {
	var collected []string
	for i := s.StartLine - 2; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, `"""`) {
			collected = append([]string{trimmed}, collected...)
			continue
		}
		break
	}
	if len(collected) == 0 {
		return ""
	}
	return strings.Join(collected, "\n")
}

// RepoChunk builds the repository-level root chunk. The file chunks that
// ChunkDocument emits carry no ParentID, so they are not linked to it.
func RepoChunk(snapshot types.RepoSnapshot, fileCount int) Chunk {
	return Chunk{
		ID:   chunkID(KindRepo, snapshot.RepoID),
		Kind: KindRepo,
		Metadata: map[string]string{
			"repo_id":     snapshot.RepoID,
			"snapshot_id": snapshot.SnapshotID,
			"files":       fmt.Sprintf("%d", fileCount),
		},
	}
}
