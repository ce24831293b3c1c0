package validation

var templateID = map[string]interface{}{
	"type": []string{"integer", "string", "null"},
}

// OptimizeRequest is the body of POST /api/v1/optimize.
var OptimizeRequest = MustCompile("optimize request", map[string]interface{}{
	"type":     "object",
	"required": []string{"text"},
	"properties": map[string]interface{}{
		"text":     map[string]interface{}{"type": "string"},
		"agent_id": templateID,
	},
	"additionalProperties": false,
})

// SettingsRequest is the body of PUT /api/v1/settings.
var SettingsRequest = MustCompile("settings request", map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"api_key": map[string]interface{}{"type": "string"},
		"model":   map[string]interface{}{"type": "string", "maxLength": 200},
		"prompts": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "object"},
		},
		"verify": map[string]interface{}{"type": "boolean"},
	},
	"additionalProperties": false,
})

// VerifyRequest is the body of POST /api/v1/settings/verify.
var VerifyRequest = MustCompile("verify request", map[string]interface{}{
	"type":     "object",
	"required": []string{"api_key"},
	"properties": map[string]interface{}{
		"api_key": map[string]interface{}{"type": "string", "minLength": 1},
		"model":   map[string]interface{}{"type": "string"},
	},
	"additionalProperties": false,
})

// OptimizeJob is the variable set of an optimize-prompt job. Process
// variables carry more than the worker needs, so extra keys are allowed.
var OptimizeJob = MustCompile("optimize-prompt job", map[string]interface{}{
	"type":     "object",
	"required": []string{"text"},
	"properties": map[string]interface{}{
		"text":    map[string]interface{}{"type": "string"},
		"agentId": templateID,
	},
})
