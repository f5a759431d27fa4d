/*
Package domain contains the core domain models of the OSDL page runtime.

It defines the declarative page schema (Nodes, data requirements, visibility rules and
repeaters), the ambient context supplied by a hosting shell, and the materialized tree
handed to a visual renderer. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Page: A tree of Nodes plus page-level data.
  - Node: A section, atom, component or codeblock with templated params.
  - DataRequirement: A keyed remote dependency of a node, blocking or not.
  - RenderedNode: The fully interpolated output for one visible node.
  - Patch: A re-evaluation signal naming the nodes that changed.
*/
package domain
