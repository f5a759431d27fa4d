// Package schema loads and checks page schemas.
//
// Pages are decoded from JSON (goccy/go-json) or YAML (yaml.v3, then
// mapstructure into the domain types), normalized so every node has a
// page-unique id, and validated. Validation collects every problem it finds
// into an AggregateError instead of stopping at the first one.
//
//	page, err := schema.DecodeFile("pages/home.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := schema.ValidatePage(page, schema.WithSourceTypes("rql", "mockData")); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        fmt.Println(e)
//	    }
//	}
//
// Component parameter contracts reuse the small type system of this package:
//
//	contracts := schema.Contracts{
//	    "button": {"label": schema.String(), "disabled": schema.Bool()},
//	}
//
// String values holding {{ }} placeholders are resolved at render time and
// are not checked against contracts.
package schema
