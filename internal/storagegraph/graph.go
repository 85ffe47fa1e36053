package storagegraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ddddddO/gtree"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"trident/internal/hostconfig"
)

// Graph is the built, validated storage graph: every node and edge from a
// single Host Configuration storage section, plus a lookup index by
// host-config ID.
//
// The underlying DAG is a gonum simple.DirectedGraph holding only node
// indices; the Node records themselves live in side maps keyed by index
// and by host-config ID.
type Graph struct {
	g *simple.DirectedGraph

	byID   map[string]*Node
	byGid  map[int64]*Node
	nextID int64
}

func newGraph() *Graph {
	return &Graph{
		g:     simple.NewDirectedGraph(),
		byID:  make(map[string]*Node),
		byGid: make(map[int64]*Node),
	}
}

// addNode registers a new node under its host-config ID. The ID must be
// unique within the graph; callers (the builder) check this before calling
// addNode and report a duplicate as DuplicateDeviceID themselves.
// The gonum graph holds only the node's integer index; the Node record
// itself lives in the side maps, so no node ever holds another node.
func (g *Graph) addNode(n *Node) {
	g.nextID++
	n.gid = g.nextID
	g.g.AddNode(simple.Node(n.gid))
	g.byID[n.ID] = n
	g.byGid[n.gid] = n
}

// addEdge records a reference from one node to another.
func (g *Graph) addEdge(from, to *Node, kind ReferenceKind) {
	g.g.SetEdge(Edge{F: simple.Node(from.gid), T: simple.Node(to.gid), Kind: kind})
}

// Lookup returns the node with the given host-config ID.
func (g *Graph) Lookup(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Nodes returns every node in the graph, ordered by ID for determinism.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.byID))
	for _, n := range g.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// targetsOf returns n's outgoing edges (the nodes n references), ordered
// by target ID.
func (g *Graph) targetsOf(n *Node) []edgeRef {
	it := g.g.From(n.gid)
	var out []edgeRef
	for it.Next() {
		to := g.byGid[it.Node().ID()]
		e := g.g.Edge(n.gid, to.gid).(Edge)
		out = append(out, edgeRef{node: to, kind: e.Kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].node.ID < out[j].node.ID })
	return out
}

// Referrers returns the nodes holding an edge to n, ordered by ID.
func (g *Graph) Referrers(n *Node) []*Node {
	return g.referrersOf(n)
}

func (g *Graph) referrersOf(n *Node) []*Node {
	it := g.g.To(n.gid)
	var out []*Node
	for it.Next() {
		out = append(out, g.byGid[it.Node().ID()])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type edgeRef struct {
	node *Node
	kind ReferenceKind
}

// acyclic reports whether the graph contains no directed cycles, via
// gonum's Tarjan-based topo.Sort.
func (g *Graph) acyclic() bool {
	_, err := topo.Sort(g.g)
	return err == nil
}

// leafPartitions walks from n through edges that pass through attributes
// (per ReferenceKind.passesThroughAttrs) and collects every Partition /
// AdoptedPartition reached, for the homogeneity rules that reason about
// transitive leaf partitions.
func (g *Graph) leafPartitions(n *Node) []*Node {
	var leaves []*Node
	seen := map[int64]bool{}
	var walk func(cur *Node)
	walk = func(cur *Node) {
		if seen[cur.gid] {
			return
		}
		seen[cur.gid] = true
		if cur.Kind == KindPartition || cur.Kind == KindAdoptedPartition {
			leaves = append(leaves, cur)
			return
		}
		for _, e := range g.targetsOf(cur) {
			if e.kind.passesThroughAttrs() {
				walk(e.node)
			}
		}
	}
	walk(n)
	return leaves
}

// Render renders the graph as an ASCII tree rooted at every Disk node,
// via ddddddO/gtree, for `tridentctl explain` style diagnostics. Nodes
// with more than one referrer are rendered once per referrer, mirroring
// how a real filesystem tree output would show a RAID member twice if it
// were (hypothetically) dual-homed.
func (g *Graph) Render() (string, error) {
	var b strings.Builder
	roots := make([]*Node, 0)
	for _, n := range g.Nodes() {
		if n.Kind == KindDisk {
			roots = append(roots, n)
		}
	}
	for i, root := range roots {
		if i > 0 {
			b.WriteByte('\n')
		}
		tree := gtree.NewRoot(label(root))
		g.renderChildren(tree, root)
		if err := gtree.OutputProgrammably(&b, tree); err != nil {
			return "", fmt.Errorf("failed to render storage graph: %w", err)
		}
	}
	return b.String(), nil
}

func (g *Graph) renderChildren(parent *gtree.Node, n *Node) {
	for _, ref := range g.referrersToDescend(n) {
		g.renderChildren(parent.Add(label(ref.node)), ref.node)
	}
}

// referrersToDescend renders the graph disk-down: for a node n, find the
// nodes that reference n (n is their target) -- i.e. descend edges in
// their reverse direction, since Render shows disks at the root with
// everything built atop them beneath. A disk holds no edges to its
// partitions, so for a Disk its partitions are listed as children too.
func (g *Graph) referrersToDescend(n *Node) []edgeRef {
	var out []edgeRef
	if n.Kind == KindDisk {
		for _, p := range g.Nodes() {
			if p.Kind == KindPartition && p.Partition.DiskID == n.ID {
				out = append(out, edgeRef{node: p, kind: Regular})
			}
		}
	}
	for _, r := range g.referrersOf(n) {
		for _, e := range g.targetsOf(r) {
			if e.node.gid == n.gid {
				out = append(out, edgeRef{node: r, kind: e.kind})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].node.ID < out[j].node.ID })
	return out
}

func label(n *Node) string {
	switch n.Kind {
	case KindDisk:
		return fmt.Sprintf("%s (disk, %s)", n.ID, n.Disk.Path)
	case KindPartition:
		return fmt.Sprintf("%s (partition, %s, %s)", n.ID, n.Partition.Size, n.Partition.Type)
	case KindFileSystem:
		if n.FileSystem.MountPoint != nil {
			return fmt.Sprintf("%s (filesystem, %s, %s)", n.ID, n.FileSystem.Type, n.FileSystem.MountPoint.Path)
		}
		return fmt.Sprintf("%s (filesystem, %s, unmounted)", n.ID, n.FileSystem.Type)
	default:
		return fmt.Sprintf("%s (%s)", n.ID, n.Kind)
	}
}

// FstabEntry is one line of the generated fstab, derived from a mounted
// FileSystem node and the device path/UUID its graph ancestry resolves to.
type FstabEntry struct {
	Source     string
	MountPoint string
	FsType     hostconfig.FileSystemType
	Options    string
}

// Fstab projects every mounted FileSystem node into fstab entries, sorted
// by mountpoint depth (shallowest first) so that nested mounts never
// precede their parent, matching how a hand-written fstab is ordered.
func (g *Graph) Fstab(devicePath func(n *Node) string) []FstabEntry {
	var entries []FstabEntry
	for _, n := range g.Nodes() {
		if n.Kind != KindFileSystem || n.FileSystem.MountPoint == nil {
			continue
		}
		targets := g.targetsOf(n)
		source := "none"
		if len(targets) == 1 {
			source = devicePath(targets[0].node)
		}
		opts := n.FileSystem.MountPoint.Options
		if opts == "" {
			opts = "defaults"
		}
		entries = append(entries, FstabEntry{
			Source:     source,
			MountPoint: n.FileSystem.MountPoint.Path,
			FsType:     n.FileSystem.Type,
			Options:    opts,
		})
	}
	depth := func(mp string) int {
		if mp == "/" {
			return 0
		}
		return strings.Count(mp, "/")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return depth(entries[i].MountPoint) < depth(entries[j].MountPoint)
	})
	return entries
}
