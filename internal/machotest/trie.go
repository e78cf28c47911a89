package machotest

import "sort"

type trieNode struct {
	terminal bool
	export   Export
	edges    []trieEdge
	offset   uint64
}

type trieEdge struct {
	label string
	child *trieNode
}

func (n *trieNode) insert(rest string, e Export) {
	if rest == "" {
		n.terminal = true
		n.export = e
		return
	}
	for i, edge := range n.edges {
		p := commonPrefix(edge.label, rest)
		if p == 0 {
			continue
		}
		if p < len(edge.label) {
			// split the edge at the shared prefix
			mid := &trieNode{edges: []trieEdge{{label: edge.label[p:], child: edge.child}}}
			n.edges[i] = trieEdge{label: edge.label[:p], child: mid}
			mid.insert(rest[p:], e)
			return
		}
		edge.child.insert(rest[p:], e)
		return
	}
	child := &trieNode{}
	n.edges = append(n.edges, trieEdge{label: rest, child: child})
	child.insert("", e)
}

func commonPrefix(a, b string) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}

func (n *trieNode) terminalInfo() []byte {
	if !n.terminal {
		return nil
	}
	info := appendUleb(nil, n.export.Flags)
	switch {
	case n.export.Flags&ExportReexport != 0:
		info = appendUleb(info, n.export.Addr) // dylib ordinal
		info = append(info, 0)
	case n.export.Flags&ExportStubAndResolver != 0:
		info = appendUleb(info, n.export.Addr)
		info = appendUleb(info, n.export.Addr+0x10)
	default:
		info = appendUleb(info, n.export.Addr)
	}
	return info
}

func (n *trieNode) size() uint64 {
	info := n.terminalInfo()
	sz := uint64(len(appendUleb(nil, uint64(len(info))))) + uint64(len(info)) + 1
	for _, e := range n.edges {
		sz += uint64(len(e.label)) + 1 + uint64(len(appendUleb(nil, e.child.offset)))
	}
	return sz
}

func (n *trieNode) nodes(all []*trieNode) []*trieNode {
	all = append(all, n)
	for _, e := range n.edges {
		all = e.child.nodes(all)
	}
	return all
}

// BuildTrie serializes exports into a dyld export trie.
func BuildTrie(exports []Export) []byte {
	root := &trieNode{}
	sorted := append([]Export(nil), exports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, e := range sorted {
		root.insert(e.Name, e)
	}

	nodes := root.nodes(nil)
	// child offsets are ULEB128 encoded so sizes depend on offsets; repeat until stable
	for {
		var off uint64
		changed := false
		for _, n := range nodes {
			if n.offset != off {
				n.offset = off
				changed = true
			}
			off += n.size()
		}
		if !changed {
			break
		}
	}

	var out []byte
	for _, n := range nodes {
		info := n.terminalInfo()
		out = appendUleb(out, uint64(len(info)))
		out = append(out, info...)
		out = append(out, byte(len(n.edges)))
		for _, e := range n.edges {
			out = append(out, e.label...)
			out = append(out, 0)
			out = appendUleb(out, e.child.offset)
		}
	}
	return out
}

func appendUleb(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// Uleb128 encodes v as an unsigned LEB128 value.
func Uleb128(v uint64) []byte { return appendUleb(nil, v) }
