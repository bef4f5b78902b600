// Package graph draws an Api as a DOT or Mermaid diagram: the API, its
// routes, the functions behind them and their authorizers.
package graph

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/emicklei/dot"

	wetwire "github.com/lex00/wetwire-aws-local"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

const apiNodeID = "api"

// Generator creates route graphs.
type Generator struct {
	// IncludeAuthorizers adds authorizer nodes between routes and functions.
	IncludeAuthorizers bool

	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByStack groups functions by the nested stack they belong to.
	ClusterByStack bool
}

// Generate creates a route graph and writes it to w.
func (g *Generator) Generate(api *wetwire.Api, w io.Writer) error {
	graph := g.buildGraph(api)

	format := g.Format
	if format == "" {
		format = FormatDOT
	}

	var output string
	if format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidLeftToRight)
	} else {
		output = graph.String()
	}

	_, err := w.Write([]byte(output))
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(api *wetwire.Api) (string, error) {
	var sb strings.Builder
	if err := g.Generate(api, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) buildGraph(api *wetwire.Api) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", g.shape("box"))
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	root := graph.Node(apiNodeID)
	root.Label(apiLabel(api))
	root.Attr("shape", g.shape("house"))

	routes := api.Routes()
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].FunctionName < routes[j].FunctionName
	})

	functions := g.addFunctionNodes(graph, routes)

	for i, route := range routes {
		n := graph.Node("route:" + strconv.Itoa(i))
		n.Label(strings.Join(route.Methods, ",") + " " + route.Path)
		graph.Edge(root, n)

		target := functions[route.FunctionName]
		if g.IncludeAuthorizers && route.Authorizer != nil {
			a := graph.Node("authorizer:" + route.Authorizer.Name)
			a.Label(route.Authorizer.Name + "\\n[" + string(route.Authorizer.Type) + "]")
			a.Attr("shape", g.shape("diamond"))
			e := graph.Edge(n, a)
			e.Attr("style", "dashed")
			if fn, ok := functions[route.Authorizer.FunctionName]; ok {
				graph.Edge(a, fn).Attr("style", "dashed")
			} else if route.Authorizer.FunctionName != "" {
				fn := graph.Node("function:" + route.Authorizer.FunctionName)
				fn.Label(route.Authorizer.FunctionName)
				fn.Attr("shape", g.shape("component"))
				graph.Edge(a, fn).Attr("style", "dashed")
			}
		}

		e := graph.Edge(n, target)
		if route.UsesV2Payload() {
			e.Attr("color", "blue")
			e.Label("2.0")
		}
	}
	return graph
}

// addFunctionNodes adds one node per function, optionally clustered by stack.
func (g *Generator) addFunctionNodes(graph *dot.Graph, routes []wetwire.Route) map[string]dot.Node {
	stacks := make(map[string][]string)
	seen := make(map[string]bool)
	for _, r := range routes {
		if seen[r.FunctionName] {
			continue
		}
		seen[r.FunctionName] = true
		stacks[r.StackPath] = append(stacks[r.StackPath], r.FunctionName)
	}

	paths := make([]string, 0, len(stacks))
	for p := range stacks {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	nodes := make(map[string]dot.Node)
	for _, stackPath := range paths {
		parent := graph
		if g.ClusterByStack && stackPath != "" {
			parent = graph.Subgraph("cluster_"+stackPath, dot.ClusterOption{})
			parent.Attr("label", stackPath)
			parent.Attr("style", "rounded")
			parent.Attr("bgcolor", "lightyellow")
		}
		for _, name := range stacks[stackPath] {
			n := parent.Node("function:" + name)
			n.Label(name)
			n.Attr("shape", g.shape("component"))
			nodes[name] = n
		}
	}
	return nodes
}

// mermaidShapes maps the DOT shapes used here onto Mermaid node shapes.
var mermaidShapes = map[string]any{
	"box":       dot.MermaidShapeRound,
	"house":     dot.MermaidShapeTrapezoid,
	"diamond":   dot.MermaidShapeRhombus,
	"component": dot.MermaidShapeSubroutine,
}

func (g *Generator) shape(name string) any {
	if g.Format == FormatMermaid {
		return mermaidShapes[name]
	}
	return name
}

func apiLabel(api *wetwire.Api) string {
	label := "API"
	if stage := api.StageName(); stage != "" {
		label += "\\n[" + stage + "]"
	}
	return label
}
