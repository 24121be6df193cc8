package generator

const summaryPrompt = `You read the text of a professional profile page and write a factual summary of the person.

Cover, when present: current role and employer, previous roles, industry, skills, education, and anything they say they are looking for or working on.
Leave out navigation text, ads and suggestions for other profiles.
Write plain prose, at most 150 words. Do not invent facts.`

// DefaultInstructions are used when a run supplies none.
const DefaultInstructions = `Write a short, friendly first-contact email in English.
Open with something specific from the person's background, explain briefly why you are reaching out, and end with one clear question.
Keep it under 120 words.`

const bodyPrompt = `You write personalized outreach emails from a profile summary.

Follow these instructions from the sender:
%s

Rules:
- Output only the email body. No subject line, no placeholders like [Name].
- Address the person by first name when the summary contains it.
- Do not claim facts that are not in the summary.`

const subjectPrompt = `Write a subject line for the email you are given.

It must be specific to the email, under 8 words, and must not be clickbait.
Output only the subject line, without quotes.`
