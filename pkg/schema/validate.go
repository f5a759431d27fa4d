package schema

import "sort"

// Schema is a map of field names to their expected types.
// Example: {"label": String(), "count": Int(), "tags": Slice(String())}
type Schema map[string]Type

// Validate checks if data conforms to the schema. Fields are required unless
// their type is Optional. Failures are reported in field name order.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var errs []error
	for _, fieldName := range fields {
		value, exists := data[fieldName]
		if !exists {
			if isOptional(schema[fieldName]) {
				continue
			}
			errs = append(errs, &ValidationError{Key: fieldName, Reason: "required"})
			continue
		}
		if err := schema[fieldName].Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: fieldName, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
