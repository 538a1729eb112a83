package tool

import (
	"fmt"

	apperrors "ChainAgent/internal/errors"
)

// ValidateArguments checks the model supplied arguments against a tool's
// input schema. Only the object shape is enforced here: required fields must
// be present and the top level must be an object. Providers validate value
// semantics themselves.
func ValidateArguments(d Descriptor, args map[string]any) error {
	schema := d.InputSchema
	if schema == nil {
		return nil
	}
	if t, ok := schema["type"].(string); ok && t != "object" {
		return apperrors.New(apperrors.CodeInvalidToolArgs,
			fmt.Sprintf("tool %s declares unsupported schema type %q", d.Name, t))
	}
	required, _ := schema["required"].([]any)
	for _, field := range required {
		name, ok := field.(string)
		if !ok {
			continue
		}
		value, present := args[name]
		if !present || value == nil {
			return apperrors.New(apperrors.CodeInvalidToolArgs,
				fmt.Sprintf("missing required argument %q", name),
				apperrors.WithMetadata("tool", d.Name))
		}
	}
	if properties, ok := schema["properties"].(map[string]any); ok {
		for name := range args {
			if _, known := properties[name]; !known {
				return apperrors.New(apperrors.CodeInvalidToolArgs,
					fmt.Sprintf("unknown argument %q", name),
					apperrors.WithMetadata("tool", d.Name))
			}
		}
	}
	return nil
}

// RequiredStrings pulls string arguments out of a validated argument map.
// A missing or non-string value returns INVALID_TOOL_ARGS.
func RequiredStrings(args map[string]any, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		value, ok := args[name].(string)
		if !ok || value == "" {
			return nil, apperrors.New(apperrors.CodeInvalidToolArgs,
				fmt.Sprintf("argument %q must be a non-empty string", name))
		}
		out[name] = value
	}
	return out, nil
}
