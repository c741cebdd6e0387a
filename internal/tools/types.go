package tools

import (
	"context"

	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

// Tool is the interface all tools must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// ConfirmFunc gates a destructive action. It returns true to proceed.
// write_file calls it with the target path and the full new content.
type ConfirmFunc func(path, content string) bool

// ConfirmAware tools accept a confirmation gate after construction.
type ConfirmAware interface {
	SetConfirm(ConfirmFunc)
}

// ToProviderDef converts a Tool to a providers.ToolDefinition for the model backend.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
