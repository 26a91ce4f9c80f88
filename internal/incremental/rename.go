package incremental

import (
	"path/filepath"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/codegraph-core/internal/types"
)

// renameDetector pairs deleted files with added files that are really the
// same file moved. Grouping by extension bounds the comparison to O(n + k²)
// within each group; candidates are filtered by size (±10%) and ranked by
// a filename similarity that averages Jaccard path-token overlap with
// go-edlib Jaro-Winkler similarity of the base names.
type renameDetector struct {
	// sizeTolerance is the ±fraction two files' sizes may differ and still
	// be considered rename candidates.
	sizeTolerance float64
	// minSimilarity is the filename-similarity floor below which a pair is
	// never a rename even if it is the only candidate.
	minSimilarity float64
}

func newRenameDetector() *renameDetector {
	return &renameDetector{sizeTolerance: 0.10, minSimilarity: 0.30}
}

// detect moves (deleted, added) pairs into cs.Renamed in place. An exact
// content-hash match is always a rename regardless of filename similarity
//.
func (r *renameDetector) detect(cs *types.ChangeSet, prev, next *Manifest) {
	if len(cs.Deleted) == 0 || len(cs.Added) == 0 {
		return
	}

	deletedByExt := make(map[string][]string)
	for p := range cs.Deleted {
		deletedByExt[filepath.Ext(p)] = append(deletedByExt[filepath.Ext(p)], p)
	}

	for added := range cs.Added {
		ext := filepath.Ext(added)
		candidates := deletedByExt[ext]
		if len(candidates) == 0 {
			continue
		}
		addedStat, ok := next.Files[added]
		if !ok {
			continue
		}

		best := ""
		bestScore := 0.0
		for _, deleted := range candidates {
			if _, taken := cs.Renamed[deleted]; taken {
				continue
			}
			delStat, ok := prev.Files[deleted]
			if !ok {
				continue
			}
			if delStat.Hash == addedStat.Hash {
				best, bestScore = deleted, 2.0 // exact content match always wins
				break
			}
			if !withinSizeTolerance(delStat.Size, addedStat.Size, r.sizeTolerance) {
				continue
			}
			score := filenameSimilarity(deleted, added)
			if score > bestScore {
				best, bestScore = deleted, score
			}
		}
		if best != "" && bestScore >= r.minSimilarity {
			cs.MarkAsRenamed(best, added)
		}
	}
}

func withinSizeTolerance(a, b int64, tol float64) bool {
	if a == 0 && b == 0 {
		return true
	}
	larger := a
	if b > larger {
		larger = b
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) <= tol*float64(larger)
}

// filenameSimilarity blends Jaccard token overlap of path segments with
// Jaro-Winkler similarity of the base names, so `util/parser.py →
// core/parser.py` scores high on both signals while unrelated files don't.
func filenameSimilarity(a, b string) float64 {
	jac := jaccard(pathTokens(a), pathTokens(b))
	jw, err := edlib.StringsSimilarity(filepath.Base(a), filepath.Base(b), edlib.JaroWinkler)
	if err != nil {
		return jac
	}
	return 0.5*jac + 0.5*float64(jw)
}

func pathTokens(p string) map[string]bool {
	out := make(map[string]bool)
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '.' || r == '_' || r == '-'
	}) {
		out[strings.ToLower(seg)] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
