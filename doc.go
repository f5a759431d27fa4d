/*
Package osdl is a runtime for declarative pages: it turns a tree of section, atom,
component and codeblock nodes into a materialized render tree.

Node content is written with a small expression language embedded in {{ ... }}
templates. Expressions read from a fixed set of roots: page data (data), the node's
fetched data (nodeData), local component state (state, parentState, states), the
current repeater element (item), the triggering event (event) and the host-supplied
facts (page, viewport, user).

# Concept

The engine separates the page schema (what to show) from its evaluation (what is
shown right now). Data requirements are fetched asynchronously and shared through
a cache; local state lives in a store outside the schema. Every evaluation records
what it read, so a state update, a settled fetch or an ambient change re-evaluates
only the nodes that depend on it.

# Key Features

  - Tolerant evaluation: missing paths yield Undefined and a broken expression only
    degrades its own node.
  - Deduplicated fetching: at most one in-flight request per cache key, with TTL reuse.
  - Blocking and non-blocking requirements, with placeholders and default values.
  - Visibility rules and repeaters over data or local state.
  - Declarative event handlers (updateState, updateNodeState) plus a dispatcher port
    for everything the host handles.

# Usage

	page := &domain.Page{
		ID: "home",
		Nodes: []domain.Node{{
			ID:     "greeting",
			Kind:   domain.KindAtom,
			Type:   "text",
			Params: map[string]any{"text": "Hello {{ user.name }}"},
		}},
	}

	eng, err := osdl.New(page, osdl.WithAmbient(domain.Ambient{
		User: map[string]any{"name": "Ana"},
	}))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	tree, err := eng.RenderSettled(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tree.Find("greeting").Params)
*/
package osdl
