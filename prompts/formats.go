package prompts

const ARRAY_FORMAT = `
Return exactly 3 suggestions as a JSON array and nothing else:
[
  {
    "title": "short title, at most 20 characters",
    "description": "one-sentence description",
    "category": "cognitive" or "behavioral",
    "steps": ["step 1", "step 2", "step 3"],
    "guide": "a gentle paragraph guiding the user through it",
    "duration": %d
  }
]
`

const OBJECT_FORMAT = `
Return a JSON object and nothing else:
{
  "suggestions": [
    {
      "title": "short title, at most 20 characters",
      "description": "one-sentence description that reflects today's conditions",
      "category": "cognitive" or "behavioral",
      "steps": ["step 1", "step 2", "step 3"],
      "guide": "a gentle paragraph guiding the user through it",
      "duration": %d
    }
  ]
}
The "suggestions" array must hold exactly 3 items.
`

const ENHANCED_FORMAT = `
Each suggestion will also be read aloud as a voice guide, so include narration-friendly fields.
Return exactly 3 suggestions as a JSON array and nothing else:
[
  {
    "title": "short title, at most 20 characters",
    "description": "one-sentence description",
    "category": "cognitive" or "behavioral",
    "steps": ["step 1", "step 2", "step 3"],
    "guide": "a gentle paragraph guiding the user through it",
    "duration": %d,
    "displaySteps": ["concise on-screen step", "..."],
    "displayGuide": "one or two short sentences for the screen",
    "detailedSteps": ["a calm, spoken instruction for each step", "..."],
    "breathingInstructions": ["breathe in slowly through your nose", "..."],
    "encouragementPhases": ["short encouraging phrase", "..."]
  }
]
`
