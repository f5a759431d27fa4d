package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
)

// Overlay carries runtime facts to highlight on the page graph.
type Overlay struct {
	MountedNodes []string
	PendingNodes []string
}

// GenerateMermaid produces a Mermaid flowchart of a page's node hierarchy.
// Shapes follow the node kind:
// - Section: [Rectangle]
// - Atom: ([Stadium])
// - Component: [[Subroutine]]
// - Codeblock: {{Hexagon}}
// Data sources are drawn as [(Cylinders)] linked with dotted arrows, and
// cross-node updateNodeState actions as thick arrows.
func GenerateMermaid(page *domain.Page, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if page == nil {
		return sb.String()
	}

	root := sanitizeMermaidID("page_" + page.ID)
	title := page.Title
	if title == "" {
		title = page.ID
	}
	fmt.Fprintf(&sb, "    %s((\"%s\"))\n", root, escapeLabel(title))

	sources := map[string]string{}
	for _, ds := range page.DataSources {
		src := sourceNode(&sb, sources, ds.Source)
		fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", src, escapeLabel(ds.Key), root)
	}

	var walk func(parent string, nodes []domain.Node)
	walk = func(parent string, nodes []domain.Node) {
		for _, node := range nodes {
			safeID := sanitizeMermaidID(node.ID)
			opener, closer := "[", "]"
			switch node.Kind {
			case domain.KindAtom:
				opener, closer = "([", "])"
			case domain.KindComponent:
				opener, closer = "[[", "]]"
			case domain.KindCodeblock:
				opener, closer = "{{", "}}"
			}

			label := node.ID
			if node.Type != "" {
				label = fmt.Sprintf("%s <br/> %s", node.ID, node.Type)
			}
			if v := node.Visibility; v != nil {
				switch {
				case v.Hidden:
					label += " <br/> hidden"
				case len(v.Conditions) > 0:
					c := v.Conditions[0]
					label += fmt.Sprintf(" <br/> 👁 %s %s %v", c.ContextPath, c.Operator, c.Value)
				}
			}
			fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(label), closer)
			fmt.Fprintf(&sb, "    %s --> %s\n", parent, safeID)

			for _, req := range node.DataRequirements {
				src := sourceNode(&sb, sources, req.Source)
				arrow := fmt.Sprintf("-. \"%s\" .->", escapeLabel(req.Key))
				if req.Blocking {
					arrow = fmt.Sprintf("== \"%s\" ==>", escapeLabel(req.Key))
				}
				fmt.Fprintf(&sb, "    %s %s %s\n", src, arrow, safeID)
			}

			events := make([]string, 0, len(node.EventHandlers))
			for ev := range node.EventHandlers {
				events = append(events, ev)
			}
			sort.Strings(events)
			for _, ev := range events {
				for _, action := range node.EventHandlers[ev] {
					if action.Type != domain.ActionUpdateNodeState || action.Target == "" {
						continue
					}
					fmt.Fprintf(&sb, "    %s -- \"⚡ %s\" --> %s\n", safeID, ev, sanitizeMermaidID(action.Target))
				}
			}

			walk(safeID, node.Children)
			if node.Repeater != nil && node.Repeater.Template != nil {
				walk(safeID, []domain.Node{*node.Repeater.Template})
			}
		}
	}
	walk(root, page.Nodes)

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef mounted fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef pending fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		writeClass(&sb, overlay.MountedNodes, "mounted")
		writeClass(&sb, overlay.PendingNodes, "pending")
	}

	return sb.String()
}

// OverlayFromTree marks every node in the tree as mounted and every
// placeholder as pending.
func OverlayFromTree(tree *domain.Tree) *Overlay {
	o := &Overlay{}
	if tree == nil {
		return o
	}
	var walk func([]*domain.RenderedNode)
	walk = func(nodes []*domain.RenderedNode) {
		for _, n := range nodes {
			o.MountedNodes = append(o.MountedNodes, n.ID)
			if n.Placeholder != nil || len(n.Pending) > 0 {
				o.PendingNodes = append(o.PendingNodes, n.ID)
			}
			walk(n.Children)
		}
	}
	walk(tree.Nodes)
	return o
}

func sourceNode(sb *strings.Builder, seen map[string]string, src domain.SourceDescriptor) string {
	key := src.Type + ":" + src.Query + ":" + strings.Join(src.Queries, ",")
	if id, ok := seen[key]; ok {
		return id
	}
	id := fmt.Sprintf("src%d", len(seen)+1)
	seen[key] = id
	label := src.Type
	if q := src.Query; q != "" {
		label += " <br/> " + q
	} else if len(src.Queries) > 0 {
		label += " <br/> " + strings.Join(src.Queries, ", ")
	}
	fmt.Fprintf(sb, "    %s[(\"%s\")]\n", id, escapeLabel(label))
	return id
}

func writeClass(sb *strings.Builder, ids []string, class string) {
	seen := make(map[string]bool)
	for _, id := range ids {
		safeID := sanitizeMermaidID(id)
		if safeID == "" || seen[safeID] {
			continue
		}
		seen[safeID] = true
		fmt.Fprintf(sb, "    class %s %s;\n", safeID, class)
	}
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
