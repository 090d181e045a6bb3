package extraction

import (
	"fmt"
	"strings"
)

const extractTemplate = `You are a clinical trial protocol analysis expert.

Your task is to extract the disease under study, the investigational drug and its dosage, ALL eligibility criteria and ALL endpoints from the protocol text below.

Important instructions:
- Do NOT invent information. If something is not explicitly stated, use "unknown".
- Preserve the original wording as much as possible.
- Criteria are usually presented as numbered or bulleted lists. Do NOT merge multiple criteria into one.
- Mark every criterion as inclusion or exclusion.
- Mark every endpoint as primary or secondary. Exploratory endpoints are secondary.
- Prefer one of these disease names when it applies: %s.

You MUST return your response as valid JSON ONLY. Do not include any text before or after the JSON.

Use the following JSON structure:
%s

Protocol text:
"""
%s
"""

Return ONLY valid JSON:
`

const repairTemplate = `Your previous answer could not be parsed as JSON (%s).

Previous answer:
"""
%s
"""

Rewrite it as a single JSON object with the structure below. Keep the same content, do not add new information and use "unknown" for anything missing.
%s

Return ONLY valid JSON:
`

func buildPrompt(schemaJSON string, vocabulary []string, text string) string {
	return fmt.Sprintf(extractTemplate, strings.Join(vocabulary, ", "), schemaJSON, text)
}

func buildRepairPrompt(schemaJSON, invalid string, cause error) string {
	return fmt.Sprintf(repairTemplate, cause, invalid, schemaJSON)
}
