package tree

import (
	"fmt"

	"github.com/emicklei/dot"
)

// DotGraph renders the subtree rooted at ref as a Graphviz graph, for
// visual debugging of tree shape and rebalancing.
func DotGraph(loader NodeLoader, ref *NodeRef) (string, error) {
	graph := dot.NewGraph(dot.Directed)
	if ref == nil {
		return graph.String(), nil
	}

	var visit func(ref *NodeRef, parent *dot.Node, direction string) error
	visit = func(ref *NodeRef, parent *dot.Node, direction string) error {
		node, err := ref.Get(loader)
		if err != nil {
			return err
		}

		var label string
		if node.isLeaf {
			label = fmt.Sprintf("K:%x V:%x v%d", node.key, node.value, node.version)
		} else {
			label = fmt.Sprintf("K:%x lh:%d rh:%d v%d", node.key, node.leftHeight, node.rightHeight, node.version)
		}

		n := graph.Node(label)
		if parent != nil {
			parent.Edge(n, direction)
		}
		if node.isLeaf {
			return nil
		}
		if err := visit(node.left, &n, "l"); err != nil {
			return err
		}
		return visit(node.right, &n, "r")
	}

	if err := visit(ref, nil, ""); err != nil {
		return "", err
	}
	return graph.String(), nil
}
