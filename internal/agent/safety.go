package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"clinical-scribe/internal/safety"
)

const safetySystemPrompt = `You are a clinical pharmacist. Compare a new treatment plan with the patient's current
medications and history and report contraindications or drug-drug interactions. Report only real, clinically
relevant issues.`

type interactionResponse struct {
	Warnings []safety.Warning `json:"warnings"`
}

// CheckInteractions returns the interaction warnings the model finds for plan.
func (c *LLMClient) CheckInteractions(ctx context.Context, currentMeds, plan string) ([]safety.Warning, error) {
	prompt := fmt.Sprintf(`Current medications / history:
%s

New treatment plan:
%s

Return JSON: {"warnings": [{"type": "interaction|contraindication", "message": "", "drug": "", "severity": "high|medium|low"}]}
Return {"warnings": []} when nothing is found.`, currentMeds, plan)

	content, err := c.complete(ctx, providerSafety, uuid.Nil, safetySystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	var out interactionResponse
	if err := decodeJSON(content, &out); err != nil {
		return nil, err
	}
	if out.Warnings == nil {
		out.Warnings = []safety.Warning{}
	}
	return out.Warnings, nil
}
