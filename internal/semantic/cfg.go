package semantic

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/codegraph-core/internal/parser"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

// cfgBuilder accumulates blocks and edges while walking one function body
// in a single pass over control-flow regions.
type cfgBuilder struct {
	lang   parser.Language
	path   string
	blocks []types.BasicBlock
	edges  []types.CFGEdge
}

func newCFGBuilder(lang parser.Language, path string) *cfgBuilder {
	return &cfgBuilder{lang: lang, path: path}
}

func (b *cfgBuilder) newBlock() types.BlockID {
	id := types.BlockID(len(b.blocks))
	b.blocks = append(b.blocks, types.BasicBlock{ID: id})
	return id
}

func (b *cfgBuilder) appendSpan(id types.BlockID, span types.Span) {
	b.blocks[id].StmtSpans = append(b.blocks[id].StmtSpans, span)
}

func (b *cfgBuilder) addEdge(from, to types.BlockID, kind types.CFGEdgeKind) {
	b.edges = append(b.edges, types.CFGEdge{From: from, To: to, Kind: kind})
}

func (b *cfgBuilder) markUnreachable(id types.BlockID) {
	b.blocks[id].Unreachable = true
}

// region is the result of building one stretch of statements: the block
// control enters at, and the blocks control may fall out of (empty if every
// path through the region terminates via return/throw).
type region struct {
	entry types.BlockID
	exits []types.BlockID
}

// BuildBFGAndCFG walks fnBody (the function's body block node) and produces
// its basic-block flow graph plus control-flow graph with dominators.
// content is the source bytes fnBody's spans are taken from.
func BuildBFGAndCFG(lang parser.Language, path string, content []byte, fnBody *tree_sitter.Node) (types.BFG, types.CFG) {
	b := newCFGBuilder(lang, path)
	entry := b.newBlock()
	if fnBody == nil {
		return types.BFG{Blocks: b.blocks}, buildDominators(entry, b.blocks, b.edges)
	}
	stmts := directStatements(fnBody)
	r := b.buildSequence(entry, stmts, content)
	_ = r
	return types.BFG{Blocks: b.blocks}, buildDominators(entry, b.blocks, b.edges)
}

// directStatements returns the immediate statement children of a block-like
// node (skipping braces/punctuation tree-sitter also attaches as children).
func directStatements(n *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		c := n.Child(i)
		if c == nil || !c.IsNamed() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func spanOf(path string, n *tree_sitter.Node) types.Span {
	start, end := n.StartPosition(), n.EndPosition()
	return types.Span{
		File: path, StartLine: int(start.Row) + 1, StartCol: int(start.Column) + 1,
		EndLine: int(end.Row) + 1, EndCol: int(end.Column) + 1,
	}
}

// buildSequence lays out stmts starting at the given entry block, returning
// the region's fall-through exits. A branch/loop/switch/try statement closes
// the current straight-line block and opens a new one after its join point;
// a return/throw/break/continue statement closes the current block with no
// fall-through exit.
func (b *cfgBuilder) buildSequence(entry types.BlockID, stmts []*tree_sitter.Node, content []byte) region {
	cur := entry
	terminated := false
	for _, stmt := range stmts {
		span := spanOf(b.path, stmt)
		kind := classifyStmt(b.lang, stmt.Kind())

		if terminated {
			// Unreachable statement: still recorded, but in a block of its own so the flag
			// is precise rather than poisoning the whole prior block.
			dead := b.newBlock()
			b.markUnreachable(dead)
			b.appendSpan(dead, span)
			cur = dead
			continue
		}

		switch kind {
		case stmtIf:
			cur = b.wireIf(cur, stmt, span, content)
		case stmtLoop:
			cur = b.wireLoop(cur, stmt, span, content)
		case stmtSwitch:
			cur = b.wireSwitch(cur, stmt, span, content)
		case stmtTry:
			cur = b.wireTry(cur, stmt, span, content)
		case stmtReturn, stmtThrow, stmtBreak, stmtContinue:
			b.appendSpan(cur, span)
			terminated = true
		default:
			b.appendSpan(cur, span)
		}
	}
	if terminated {
		return region{entry: entry, exits: nil}
	}
	return region{entry: entry, exits: []types.BlockID{cur}}
}

// wireIf handles if/elif/else: the header statement stays in cur; then- and
// else-branches become sibling sub-regions joined afterward.
func (b *cfgBuilder) wireIf(cur types.BlockID, stmt *tree_sitter.Node, headerSpan types.Span, content []byte) types.BlockID {
	b.appendSpan(cur, headerSpan)

	var exits []types.BlockID
	consequence := stmt.ChildByFieldName("consequence")
	thenEntry := b.newBlock()
	b.addEdge(cur, thenEntry, types.EdgeCFGBranch)
	thenRegion := b.buildSequence(thenEntry, directStatements(orSelf(consequence)), content)
	exits = append(exits, thenRegion.exits...)

	if alt := stmt.ChildByFieldName("alternative"); alt != nil {
		elseEntry := b.newBlock()
		b.addEdge(cur, elseEntry, types.EdgeCFGBranch)
		elseRegion := b.buildSequence(elseEntry, directStatements(orSelf(alt)), content)
		exits = append(exits, elseRegion.exits...)
	} else {
		// No else: falling through the condition itself is a valid path.
		exits = append(exits, cur)
	}

	if len(exits) == 0 {
		// Every branch terminates; caller's sequence also terminates here.
		join := b.newBlock()
		b.markUnreachable(join)
		return join
	}
	join := b.newBlock()
	for _, e := range exits {
		if e == cur {
			b.addEdge(e, join, types.EdgeCFGBranch)
		} else {
			b.addEdge(e, join, types.EdgeCFGNext)
		}
	}
	return join
}

// wireLoop handles for/while/do: header holds the loop statement, body is a
// sub-region whose fall-through exits back-edge to the header, and
// control also flows from header directly to the block after
// the loop (the zero-iteration / exit-condition-false path).
func (b *cfgBuilder) wireLoop(cur types.BlockID, stmt *tree_sitter.Node, headerSpan types.Span, content []byte) types.BlockID {
	b.appendSpan(cur, headerSpan)

	body := stmt.ChildByFieldName("body")
	bodyEntry := b.newBlock()
	b.addEdge(cur, bodyEntry, types.EdgeCFGBranch)
	bodyRegion := b.buildSequence(bodyEntry, directStatements(orSelf(body)), content)
	for _, e := range bodyRegion.exits {
		b.addEdge(e, cur, types.EdgeCFGLoop)
	}

	after := b.newBlock()
	b.addEdge(cur, after, types.EdgeCFGNext)
	return after
}

// wireSwitch handles switch/match: header branches to each case body; every
// case's fall-through exit joins after the switch.
func (b *cfgBuilder) wireSwitch(cur types.BlockID, stmt *tree_sitter.Node, headerSpan types.Span, content []byte) types.BlockID {
	b.appendSpan(cur, headerSpan)

	var exits []types.BlockID
	count := stmt.ChildCount()
	anyCase := false
	for i := uint(0); i < count; i++ {
		c := stmt.Child(i)
		if c == nil || !c.IsNamed() {
			continue
		}
		// Case/clause bodies vary by grammar; treat any named child other
		// than the switch's own subject/condition as a candidate case body.
		if c.Kind() == stmt.Kind() {
			continue
		}
		anyCase = true
		caseEntry := b.newBlock()
		b.addEdge(cur, caseEntry, types.EdgeCFGBranch)
		caseRegion := b.buildSequence(caseEntry, directStatements(c), content)
		exits = append(exits, caseRegion.exits...)
	}
	if !anyCase {
		after := b.newBlock()
		b.addEdge(cur, after, types.EdgeCFGNext)
		return after
	}
	join := b.newBlock()
	b.addEdge(cur, join, types.EdgeCFGNext) // no-case-matched fallthrough
	for _, e := range exits {
		b.addEdge(e, join, types.EdgeCFGNext)
	}
	return join
}

// wireTry handles try/catch: the guarded body flows normally; the handler
// body is reached via CFG_HANDLER from the header, modeling "any statement
// in the try body may raise" conservatively rather than per-statement.
func (b *cfgBuilder) wireTry(cur types.BlockID, stmt *tree_sitter.Node, headerSpan types.Span, content []byte) types.BlockID {
	b.appendSpan(cur, headerSpan)

	body := stmt.ChildByFieldName("body")
	bodyEntry := b.newBlock()
	b.addEdge(cur, bodyEntry, types.EdgeCFGNext)
	bodyRegion := b.buildSequence(bodyEntry, directStatements(orSelf(body)), content)

	var exits []types.BlockID
	exits = append(exits, bodyRegion.exits...)

	handlerEntry := b.newBlock()
	b.addEdge(cur, handlerEntry, types.EdgeCFGHandler)
	// Handler body (catch/except clause) isn't uniformly field-named across
	// grammars; best-effort scan for a clause child.
	for i := uint(0); i < stmt.ChildCount(); i++ {
		c := stmt.Child(i)
		if c == nil || !c.IsNamed() || c == body {
			continue
		}
		handlerRegion := b.buildSequence(handlerEntry, directStatements(c), content)
		exits = append(exits, handlerRegion.exits...)
	}

	if len(exits) == 0 {
		join := b.newBlock()
		b.markUnreachable(join)
		return join
	}
	join := b.newBlock()
	for _, e := range exits {
		b.addEdge(e, join, types.EdgeCFGNext)
	}
	return join
}

func orSelf(n *tree_sitter.Node) *tree_sitter.Node {
	return n
}

// buildDominators runs the Cooper-Harvey-Kennedy iterative dominator
// algorithm: converges on any CFG, reducible or not, by
// iterating to a fixpoint over a reverse-postorder block list. Irreducible
// inputs simply take more iterations; iterating to fixpoint is used
// unconditionally since it subsumes the reducible case.
func buildDominators(entry types.BlockID, blocks []types.BasicBlock, edges []types.CFGEdge) types.CFG {
	preds := make(map[types.BlockID][]types.BlockID)
	for _, e := range edges {
		preds[e.To] = append(preds[e.To], e.From)
	}

	order := reversePostorder(entry, edges, len(blocks))
	rpoIndex := make(map[types.BlockID]int, len(order))
	for i, b := range order {
		rpoIndex[b] = i
	}

	idom := make(map[types.BlockID]types.BlockID)
	idom[entry] = entry
	changed := true
	iterations := 0
	for changed {
		changed = false
		iterations++
		for _, b := range order {
			if b == entry {
				continue
			}
			var newIdom types.BlockID
			set := false
			for _, p := range preds[b] {
				if _, ok := idom[p]; !ok {
					continue
				}
				if !set {
					newIdom = p
					set = true
					continue
				}
				newIdom = intersect(newIdom, p, idom, rpoIndex)
			}
			if cur, ok := idom[b]; set && (!ok || cur != newIdom) {
				idom[b] = newIdom
				changed = true
			}
		}
		if iterations > len(blocks)+2 {
			break // safety bound; a correct CFG converges well before this
		}
	}

	domTree := make(map[types.BlockID][]types.BlockID)
	for b, d := range idom {
		if b == entry {
			continue
		}
		domTree[d] = append(domTree[d], b)
	}
	df := computeDominanceFrontier(blocks, preds, idom)

	return types.CFG{Entry: entry, Blocks: blocks, Edges: edges, IDom: idom, DomTree: domTree, DF: df}
}

func intersect(a, b types.BlockID, idom map[types.BlockID]types.BlockID, rpo map[types.BlockID]int) types.BlockID {
	for a != b {
		for rpo[a] > rpo[b] {
			a = idom[a]
		}
		for rpo[b] > rpo[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostorder(entry types.BlockID, edges []types.CFGEdge, n int) []types.BlockID {
	succ := make(map[types.BlockID][]types.BlockID)
	for _, e := range edges {
		succ[e.From] = append(succ[e.From], e.To)
	}
	visited := make(map[types.BlockID]bool, n)
	var post []types.BlockID
	var visit func(types.BlockID)
	visit = func(b types.BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range succ[b] {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	// Any block unreachable from entry (dead code after an unconditional
	// terminator) still needs a position so dominator computation doesn't
	// skip it; append in id order after the reachable set.
	for i := 0; i < n; i++ {
		visit(types.BlockID(i))
	}
	// reverse
	out := make([]types.BlockID, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}

// computeDominanceFrontier computes DF(b) for every block with more than one
// predecessor, per the standard Cytron et al. algorithm: a block b is in
// DF(p) for every predecessor p of a join block whose dominator does not
// strictly dominate p.
func computeDominanceFrontier(blocks []types.BasicBlock, preds map[types.BlockID][]types.BlockID, idom map[types.BlockID]types.BlockID) map[types.BlockID][]types.BlockID {
	df := make(map[types.BlockID][]types.BlockID)
	for _, blk := range blocks {
		b := blk.ID
		ps := preds[b]
		if len(ps) < 2 {
			continue
		}
		for _, p := range ps {
			runner := p
			for runner != idom[b] && runner != b {
				df[runner] = appendUnique(df[runner], b)
				next, ok := idom[runner]
				if !ok || next == runner {
					break
				}
				runner = next
			}
		}
	}
	return df
}

func appendUnique(s []types.BlockID, v types.BlockID) []types.BlockID {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}
