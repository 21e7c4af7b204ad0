package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yacr/internal/logging"
	"github.com/frederic-klein/yacr/internal/recipe"
)

var (
	// ErrCycle is returned when requirements depend on each other.
	ErrCycle = errors.New("dependency cycle")
	// ErrConflict is returned when two versions of the same recipe are required.
	ErrConflict = errors.New("version conflict")
)

// Node is one package of the graph.
type Node struct {
	Ref      recipe.Ref
	Recipe   *recipe.Recipe // nil for external requirements
	Requires []recipe.Ref
}

// External reports whether no recipe is known for the node.
func (n *Node) External() bool {
	return n.Recipe == nil
}

// Graph is an expanded requirement graph.
type Graph struct {
	Nodes map[string]*Node
	// Order lists the nodes dependencies first.
	Order []*Node
}

// External returns the references that have no recipe, in build order.
func (g *Graph) External() []recipe.Ref {
	var refs []recipe.Ref
	for _, n := range g.Order {
		if n.External() {
			refs = append(refs, n.Ref)
		}
	}
	return refs
}

// Builder expands requirements recursively over a recipe registry.
type Builder struct {
	registry  *recipe.Registry
	logger    *log.Logger
	nodes     map[string]*Node
	order     []*Node
	resolving map[string]bool
	stack     []string
}

// NewBuilder creates a graph builder.
func NewBuilder(reg *recipe.Registry, logger *log.Logger) *Builder {
	return &Builder{
		registry: reg,
		logger:   logging.OrDiscard(logger).WithPrefix("graph"),
	}
}

// Build expands the given requirements into a graph.
func (b *Builder) Build(roots []recipe.Ref) (*Graph, error) {
	b.nodes = make(map[string]*Node)
	b.order = nil
	b.resolving = make(map[string]bool)
	b.stack = nil

	for _, ref := range roots {
		if err := b.visit(ref); err != nil {
			return nil, err
		}
	}
	return &Graph{Nodes: b.nodes, Order: b.order}, nil
}

func (b *Builder) visit(ref recipe.Ref) error {
	if n, ok := b.nodes[ref.Name]; ok {
		if n.Ref.Version != ref.Version {
			return fmt.Errorf("%w: %s required as %s and %s", ErrConflict, ref.Name, n.Ref.Version, ref.Version)
		}
		return nil
	}

	if b.resolving[ref.Name] {
		cycle := append(append([]string{}, b.stack...), ref.Name)
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
	}
	b.resolving[ref.Name] = true
	b.stack = append(b.stack, ref.Name)
	defer func() {
		delete(b.resolving, ref.Name)
		b.stack = b.stack[:len(b.stack)-1]
	}()

	node := &Node{Ref: ref}
	r, found := b.registry.Get(ref.Name)
	if !found {
		b.logger.Debug("no recipe, treating as external", "ref", ref)
	} else {
		b.logger.Debug("expanding", "ref", ref)
		node.Recipe = r
		node.Requires = r.Dependencies()
		for _, dep := range node.Requires {
			if err := b.visit(dep); err != nil {
				return err
			}
		}
	}

	b.nodes[ref.Name] = node
	b.order = append(b.order, node)
	return nil
}
