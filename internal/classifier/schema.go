package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"prompt-switcher/internal/prompts"

	"github.com/xeipuuv/gojsonschema"
)

// replySchema is what the model must send back in the message content.
var replySchema = gojsonschema.NewGoLoader(map[string]interface{}{
	"type":     "object",
	"required": []string{"id"},
	"properties": map[string]interface{}{
		"id": map[string]interface{}{
			"type": []string{"integer", "string"},
		},
	},
})

// parseReply validates the model's JSON content and extracts the chosen id.
func parseReply(content string) (prompts.ID, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return prompts.ID{}, fmt.Errorf("%w: empty reply content", ErrClassificationFailed)
	}

	result, err := gojsonschema.Validate(replySchema, gojsonschema.NewStringLoader(content))
	if err != nil {
		return prompts.ID{}, fmt.Errorf("%w: reply is not JSON: %v", ErrClassificationFailed, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return prompts.ID{}, fmt.Errorf("%w: reply failed validation: %v", ErrClassificationFailed, errs)
	}

	var reply struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return prompts.ID{}, fmt.Errorf("%w: decode reply: %v", ErrClassificationFailed, err)
	}

	var id prompts.ID
	if err := id.UnmarshalJSON(reply.ID); err != nil {
		return prompts.ID{}, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	return id, nil
}
