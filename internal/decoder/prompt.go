package decoder

import (
	"fmt"
	"strings"

	"breakfear-decoder/internal/models"
	"breakfear-decoder/pkg/registry"
)

// Prompt is everything a Client needs for one call.
type Prompt struct {
	Contents          string
	SystemInstruction string
	Fields            []registry.FieldSpec
	Schema            map[string]interface{}
	Request           models.QuestionRequest
}

// BuildPrompt renders the user contents line and attaches the variant's
// instruction and output schema.
func BuildPrompt(v registry.Variant, req models.QuestionRequest) Prompt {
	contents := fmt.Sprintf("User's First Name: %s. User's Question: \"%s\"",
		strings.TrimSpace(req.FirstName), strings.TrimSpace(req.Question))
	if req.Source != "" {
		contents += fmt.Sprintf(". Source: %s", req.Source)
	}

	return Prompt{
		Contents:          contents,
		SystemInstruction: v.SystemInstruction,
		Fields:            v.Fields,
		Schema:            v.OutputSchema(),
		Request:           req,
	}
}
