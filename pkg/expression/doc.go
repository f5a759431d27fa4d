/*
Package expression implements the small expression language found inside {{ }}
placeholders and standalone conditions.

Grammar, from lowest to highest precedence:

	ternary         cond ? a : b
	logical         ||  &&
	comparison      ==  !=  ===  !==  >=  <=  >  <
	additive        +  -
	multiplicative  *  /  %
	unary           !  -
	postfix         .prop  [expr]  name(args)  .method(args)
	primary         identifier, number, 'string', "string", true, false, null,
	                undefined, ( expr )

Member and index access never fail: reading through undefined or null, a missing key or
an out-of-range index yields Undefined. This keeps idioms such as

	items[10] ? items[10].name : "fallback"

safe. Calling a function that is not registered is an *domain.EvalError.
*/
package expression
