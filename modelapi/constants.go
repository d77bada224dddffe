package modelapi

const WORKOUT_INSTRUCTION = `
You are an experienced personal trainer who writes safe, practical home workouts.
Tailor every exercise to the trainee's fitness level and make the whole session fit the requested number of minutes, including rest.
Each exercise needs a short query that would find a demonstration video of exactly that exercise on YouTube.

Reply with ONLY a JSON array. No prose, no Markdown, no code fences. Use exactly this structure:
[
    {
        "name": "Exercise name",
        "description": "Exercise description",
        "reps": "Number of reps (or duration)",
        "query": "A short query to find a relevant YouTube video"
    }
]
`

const WORKOUT_PROMPT = `Create a %d-minute workout plan for a person who is %s. Ensure that each exercise includes a valid YouTube query.`

const WORKOUT_REPAIR_PROMPT = `
Your previous reply could not be used: %s.
Reply again with ONLY the JSON array described above, with the fields "name", "description", "reps" and "query" on every element.

Previous reply:
%s
`

const TRANSLATION_INSTRUCTION = `
Translate the user's text to %s.
Reply with the translation only, without quotes or explanations.
Keep numbers, units, URLs, emoji and any HTML tags exactly as they are.
If the text is already in %s, return it unchanged.
`
