package chunk

import (
	"context"
	"strings"
	"unicode"

	"github.com/surgebase/porter2"

	"github.com/standardbeagle/codegraph-core/internal/ports"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// Emitter streams chunks to the vector and lexical stores as they are
// produced. Records go out in small batches so memory stays bounded on
// large repositories.
type Emitter struct {
	vector  ports.VectorStore
	lexical ports.LexicalStore
	batch   int

	vecBuf []ports.VectorRecord
	lexBuf []ports.LexicalRecord
}

// NewEmitter builds an Emitter over the two stores. Either store may be nil
// to disable that output.
func NewEmitter(vector ports.VectorStore, lexical ports.LexicalStore) *Emitter {
	return &Emitter{vector: vector, lexical: lexical, batch: 64}
}

// EmitDocument chunks one document and streams every chunk out.
func (e *Emitter) EmitDocument(ctx context.Context, chunker *Chunker, doc *types.IRDocument, content []byte) error {
	yield := func(c Chunk) error { return e.emit(ctx, c) }
	if err := chunker.ChunkDocument(doc, content, yield); err != nil {
		return err
	}
	if err := chunker.ChunkSkeleton(doc, content, yield); err != nil {
		return err
	}
	return nil
}

func (e *Emitter) emit(ctx context.Context, c Chunk) error {
	if e.vector != nil {
		e.vecBuf = append(e.vecBuf, ports.VectorRecord{
			ID:       c.ID,
			ChunkID:  c.ID,
			Text:     c.Text,
			Metadata: c.Metadata,
		})
		if len(e.vecBuf) >= e.batch {
			if err := e.flushVector(ctx); err != nil {
				return err
			}
		}
	}
	if e.lexical != nil {
		e.lexBuf = append(e.lexBuf, ports.LexicalRecord{
			ID:    c.ID,
			Text:  c.Text,
			Terms: StemTerms(c.Text),
		})
		if len(e.lexBuf) >= e.batch {
			if err := e.flushLexical(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush drains any buffered records. Call once after the last document.
func (e *Emitter) Flush(ctx context.Context) error {
	if err := e.flushVector(ctx); err != nil {
		return err
	}
	return e.flushLexical(ctx)
}

func (e *Emitter) flushVector(ctx context.Context) error {
	if e.vector == nil || len(e.vecBuf) == 0 {
		return nil
	}
	err := e.vector.Upsert(ctx, e.vecBuf)
	e.vecBuf = e.vecBuf[:0]
	return err
}

func (e *Emitter) flushLexical(ctx context.Context) error {
	if e.lexical == nil || len(e.lexBuf) == 0 {
		return nil
	}
	err := e.lexical.Index(ctx, e.lexBuf)
	e.lexBuf = e.lexBuf[:0]
	return err
}

// DeleteFile soft-deletes every chunk belonging to a removed file. IDs are
// reconstructed from the chunk-id scheme, so no chunk inventory needs to be
// kept in memory; node-level chunk ids are passed by the caller, which
// still holds the outgoing document.
func (e *Emitter) DeleteFile(ctx context.Context, file string, nodeChunkIDs []string) error {
	ids := append([]string{chunkID(KindFile, file), chunkID(KindSkeleton, file)}, nodeChunkIDs...)
	if e.vector != nil {
		if err := e.vector.Delete(ctx, ids); err != nil {
			return err
		}
	}
	if e.lexical != nil {
		if err := e.lexical.Delete(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}

// StemTerms tokenizes text on identifier boundaries (camelCase, snake_case,
// punctuation) and Porter2-stems each token, the normalization the lexical
// store matches on.
func StemTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range splitIdentifiers(text) {
		stem := porter2.Stem(strings.ToLower(tok))
		if stem == "" || seen[stem] {
			continue
		}
		seen[stem] = true
		terms = append(terms, stem)
	}
	return terms
}

func splitIdentifiers(text string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) >= 2 {
			out = append(out, string(cur))
		}
		cur = cur[:0]
	}
	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			// Split camelCase at a lower->upper boundary.
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, r)
		case unicode.IsDigit(r):
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return out
}
