package expression

// node is an element of the expression AST.
type node interface {
	eval(e *Evaluator, s Scope) (any, error)
}

type literal struct{ value any }

type ident struct{ name string }

type member struct {
	object   node
	property string
}

type index struct {
	object node
	key    node
}

type call struct {
	name string
	args []node
}

// methodCall is receiver.name(args), dispatched to the function table
// with the receiver as first argument.
type methodCall struct {
	receiver node
	name     string
	args     []node
}

type unary struct {
	op string
	x  node
}

type binary struct {
	op          string
	left, right node
}

type logical struct {
	op          string
	left, right node
}

type conditional struct {
	test, consequent, alternate node
}

// collectRoots records every identifier used as the head of a path.
func collectRoots(n node, into map[string]struct{}) {
	switch v := n.(type) {
	case *ident:
		into[v.name] = struct{}{}
	case *member:
		collectRoots(v.object, into)
	case *index:
		collectRoots(v.object, into)
		collectRoots(v.key, into)
	case *call:
		for _, a := range v.args {
			collectRoots(a, into)
		}
	case *methodCall:
		collectRoots(v.receiver, into)
		for _, a := range v.args {
			collectRoots(a, into)
		}
	case *unary:
		collectRoots(v.x, into)
	case *binary:
		collectRoots(v.left, into)
		collectRoots(v.right, into)
	case *logical:
		collectRoots(v.left, into)
		collectRoots(v.right, into)
	case *conditional:
		collectRoots(v.test, into)
		collectRoots(v.consequent, into)
		collectRoots(v.alternate, into)
	}
}
