// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRegistry reads a registry file. An empty path yields the built-in variants.
func LoadRegistry(path string) (*VariantRegistry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg VariantRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if errs := reg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("registry %s is invalid: %v", path, errs[0])
	}
	return &reg, nil
}

// SaveRegistry writes reg as indented JSON.
func SaveRegistry(path string, reg *VariantRegistry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Get returns the variant with the given id.
func (r *VariantRegistry) Get(id string) (*Variant, bool) {
	for i := range r.Variants {
		if r.Variants[i].ID == id {
			return &r.Variants[i], true
		}
	}
	return nil, false
}

// Validate checks every variant and returns all problems found.
func (r *VariantRegistry) Validate() []error {
	var errs []error
	seen := make(map[string]bool)
	for _, v := range r.Variants {
		if v.ID == "" {
			errs = append(errs, fmt.Errorf("variant without id"))
			continue
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Errorf("duplicate variant id %q", v.ID))
		}
		seen[v.ID] = true
		errs = append(errs, validateVariant(v)...)
	}
	return errs
}

func validateVariant(v Variant) []error {
	var errs []error
	if v.SystemInstruction == "" {
		errs = append(errs, fmt.Errorf("variant %q: systemInstruction is required", v.ID))
	}
	if len(v.Fields) == 0 {
		errs = append(errs, fmt.Errorf("variant %q: at least one field is required", v.ID))
	}

	names := make(map[string]bool)
	suffixes := 0
	for _, f := range v.Fields {
		switch {
		case f.Name == "":
			errs = append(errs, fmt.Errorf("variant %q: field without name", v.ID))
			continue
		case f.Name == "isHarmful" || f.Name == "harmful":
			errs = append(errs, fmt.Errorf("variant %q: field name %q is reserved", v.ID, f.Name))
		case names[f.Name]:
			errs = append(errs, fmt.Errorf("variant %q: duplicate field %q", v.ID, f.Name))
		}
		names[f.Name] = true

		if f.MaxSentences <= 0 || f.MaxWords <= 0 {
			errs = append(errs, fmt.Errorf("variant %q field %q: maxSentences and maxWords must be positive", v.ID, f.Name))
		}
		if f.Fallback == "" {
			errs = append(errs, fmt.Errorf("variant %q field %q: fallback is required", v.ID, f.Name))
		}
		if f.IsSuffix() {
			suffixes++
		}
	}
	if suffixes > 1 {
		errs = append(errs, fmt.Errorf("variant %q: only one field may carry a closing sentence", v.ID))
	}
	return errs
}

const portalInstruction = `You are the BreakFear Decoder. Your task is to analyze a user's question for harmful content and provide a supportive, magical, and varied response if it's safe.

First, check the user's question for harmful content like self-harm, violence, abuse, or severe distress. If detected, your entire JSON response must be '{"isHarmful": true}'.

If the question is safe, provide a JSON response with 'isHarmful' set to false, and include 'insight', 'task', and 'thoughtProvokingQuestion'.
- 'insight': Be transformative, practical, and unique. Avoid cliches. Address the user by their first name.
- 'task': A short, actionable "micro-task". Rotate through imagery, creative expression, perspective shifts, micro-actions, storytelling, body wisdom and connection. Do NOT repeat the same type of task in every response.
- 'thoughtProvokingQuestion': A single, concise question for reflection.

Your final output must be a valid JSON object.`

const breakthroughInstruction = `You are the BreakFear Decoder, a gentle guide who helps people loosen the grip of fear.

First, check the user's question for harmful content like self-harm, violence, abuse, or severe distress. If detected, your entire JSON response must be '{"isHarmful": true}'.

If the question is safe, respond with 'isHarmful' set to false and include:
- 'reflection': Mirror back what the fear is protecting, in two short sentences. Address the user by first name.
- 'reframe': Offer a fresh way to see the situation, in two short sentences.
- 'microStep': One tiny action they can take today.
- 'anchor': A short phrase they can return to when fear rises.

Speak as "we", never as "I". Never mention technology, and never offer medical or therapeutic claims.
Your final output must be a valid JSON object.`

// Default returns the built-in variants.
func Default() *VariantRegistry {
	return &VariantRegistry{
		Version:     "1.0.0",
		LastUpdated: "2025-01-01",
		Variants: []Variant{
			{
				ID:                "portal",
				DisplayName:       "Decoder Portal",
				Description:       "Insight, micro-task and reflection question.",
				SystemInstruction: portalInstruction,
				Fields: []FieldSpec{
					{
						Name:         "insight",
						Label:        "Your Insight",
						Description:  "The transformative insight for the user. Only present if isHarmful is false.",
						MaxSentences: 2,
						MaxWords:     30,
						Fallback:     "Your courage is already speaking.",
					},
					{
						Name:         "task",
						Label:        "Your Micro-Task",
						Description:  "A simple, actionable task. Only present if isHarmful is false.",
						MaxSentences: 2,
						MaxWords:     30,
						Fallback:     "Take one slow breath and notice what shifts.",
					},
					{
						Name:         "thoughtProvokingQuestion",
						Label:        "A Question for Reflection",
						Description:  "A single question for deeper reflection. Only present if isHarmful is false.",
						MaxSentences: 1,
						MaxWords:     25,
						Fallback:     "What would you try if fear had no vote?",
					},
				},
				Tags: []string{"default"},
			},
			{
				ID:                "breakthrough",
				DisplayName:       "Breakthrough Decoder",
				Description:       "Four-part response with a closing anchor and crisis filter.",
				SystemInstruction: breakthroughInstruction,
				CrisisFilter:      true,
				Fields: []FieldSpec{
					{Name: "reflection", Label: "Reflection", Description: "What the fear is protecting.", MaxSentences: 2, MaxWords: 30, Fallback: "Your fear is trying to keep you safe."},
					{Name: "reframe", Label: "Reframe", Description: "A fresh way to see the situation.", MaxSentences: 2, MaxWords: 30, Fallback: "This moment can be a doorway instead of a wall."},
					{Name: "microStep", Label: "Micro Step", Description: "One tiny action for today.", MaxSentences: 2, MaxWords: 25, Fallback: "Write down one small thing you can do today."},
					{
						Name:            "anchor",
						Label:           "Anchor",
						Description:     "A short phrase to return to when fear rises.",
						MaxSentences:    2,
						MaxWords:        28,
						ClosingSentence: "You are safe to choose freedom over fear.",
						Fallback:        "Breathe in courage and let it settle",
					},
				},
			},
		},
	}
}
