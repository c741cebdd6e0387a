package agent

import (
	"bytes"
	"encoding/json"

	"github.com/nextlevelbuilder/localcoder/internal/providers"
)

// ParseArguments resolves a tool call's payload to a mapping. A JSON string
// is decoded once; an inline object is used as is. Anything else, or text
// that does not decode to an object, yields an empty map and ok=false.
func ParseArguments(raw providers.Arguments) (args map[string]interface{}, ok bool) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return map[string]interface{}{}, false
	}

	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return map[string]interface{}{}, false
		}
		data = []byte(text)
	case '{':
	default:
		return map[string]interface{}{}, false
	}

	if err := json.Unmarshal(data, &args); err != nil || args == nil {
		return map[string]interface{}{}, false
	}
	return args, true
}
