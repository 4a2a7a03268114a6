package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
)

// ServiceName is the name of the capability every agent offers about itself.
const ServiceName = "agent-service"

// MethodRecordToContext records a value into the agent's context.
const MethodRecordToContext = "recordToContext"

func selfService(store *ContextStore) module.Module {
	return module.New(module.KindService, ServiceName,
		"Capabilities of the agent itself, such as remembering information for later steps.",
		module.Method{
			Name:        MethodRecordToContext,
			Description: "Record a value in the agent context so that later steps can read it.",
			Parameters: module.Object(map[string]any{
				"key":   module.StringProp("the name the value is stored under"),
				"value": module.StringProp("the value to store"),
			}, "key", "value"),
			Perform: func(_ context.Context, args module.Args) (any, error) {
				key := strings.TrimSpace(args.String("key"))
				if key == "" {
					return nil, errors.New(errors.CodeInvalidInput, "context key is required", nil)
				}
				store.Set(key, args.String("value"))
				return fmt.Sprintf("Recorded %q in the agent context.", key), nil
			},
		})
}
