/*
Package dsl provides a fluent Go builder for OSDL pages.

It lets hosts and tests declare pages in Go instead of YAML or JSON files,
with compile-time checking and IDE completion. Built pages are normalized
and validated like any loaded page.

Example usage:

	page, err := dsl.New("home").
		Title("Home").
		Add(
			dsl.Section("hero").Children(
				dsl.Atom("title").Type("Text").Param("text", "Hello {{ user.name }}"),
			),
			dsl.Component("counter").
				Type("Button").
				State(map[string]any{"count": 0}).
				Param("label", "Clicked {{ state.count }} times").
				On(domain.EventClick, dsl.UpdateState(map[string]any{"count": "{{ state.count + 1 }}"})),
		).
		Build()
*/
package dsl
