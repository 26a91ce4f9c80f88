package cache

import (
	"fmt"
	"sort"

	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// FileFingerprint derives the fingerprint for one source file: BLAKE3 over
// its bytes. The optional AST hash is left empty; no stage in this module
// sets it.
func FileFingerprint(fileID types.FileID, content []byte) types.Fingerprint {
	return types.Fingerprint{FileID: fileID, ContentHash: idcodec.ContentHash(content)}
}

// SummaryFingerprint derives a function summary's fingerprint from its body
// hash plus the sorted fingerprints of its callees. Sorting makes
// the result independent of call-graph iteration order.
func SummaryFingerprint(bodyHash string, calleeFingerprints []string) string {
	sorted := make([]string, len(calleeFingerprints))
	copy(sorted, calleeFingerprints)
	sort.Strings(sorted)

	var buf []byte
	buf = append(buf, bodyHash...)
	for _, fp := range sorted {
		buf = append(buf, 0)
		buf = append(buf, fp...)
	}
	return idcodec.ContentHash(buf)
}

// StageConfigHash fingerprints the subset of configuration a stage's output
// depends on, so a config change invalidates exactly the artifacts it
// affects.
func StageConfigHash(parts ...any) string {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, []byte(fmt.Sprintf("%v\x00", p))...)
	}
	return idcodec.ContentHash(buf)
}

// Key assembles the full cache key for an artifact.
func Key(artifactKind, subjectID string, fp types.Fingerprint, stageConfigHash string) types.CacheKey {
	fpStr := fp.ContentHash
	if fp.ASTHash != "" {
		fpStr += ":" + fp.ASTHash
	}
	return types.CacheKey{
		ArtifactKind: artifactKind,
		SubjectID:    subjectID,
		Fingerprint:  fpStr,
		StageConfig:  stageConfigHash,
	}
}
