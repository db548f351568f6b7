package agent

import "encoding/json"

const candidateSystemPrompt = `You are a candidate screening assistant for a hiring platform.
You compare a candidate's resume and interview responses against a vacancy and
produce a structured gap analysis. Be factual, cite only evidence present in
the provided material, and keep the tone neutral. Answer in the candidate's
language when one is given.`

const employerSystemPrompt = `You are a hiring analyst assisting an employer.
You summarize how well candidates fit a vacancy, surface risks and strengths,
and answer follow-up questions grounded in the screening material provided.
Never invent facts about a candidate.`

// mismatchSchema is the JSON shape the candidate analysis must come back in.
var mismatchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"summary": {"type": "string"},
		"strengths": {"type": "array", "items": {"type": "string"}},
		"gaps": {"type": "array", "items": {"type": "string"}},
		"recommendation": {"type": "string", "enum": ["advance", "review", "reject"]}
	},
	"required": ["score", "summary", "strengths", "gaps", "recommendation"]
}`)

// insightSchema is the JSON shape for employer-facing vacancy insights.
var insightSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"top_candidates": {"type": "array", "items": {"type": "string"}},
		"common_gaps": {"type": "array", "items": {"type": "string"}},
		"suggestions": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary", "common_gaps", "suggestions"]
}`)
