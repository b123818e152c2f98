package stage

import (
	"fmt"
	"strings"

	"studyhub/internal/language"
)

// maxTranscriptChars bounds the transcript excerpt sent to the model.
const maxTranscriptChars = 60000

const summarySystemPrompt = `You are a study assistant. Summarize the lecture transcript for a student.
Write Markdown with short headed sections and clear bullet points.
Separate definitions, core ideas, and worked examples when the lecture contains them.
Do not invent facts that are not in the transcript.`

const conceptsSystemPrompt = `You are a study assistant. Extract the key concepts a student must know from the lecture transcript.
Respond with JSON only, shaped as {"concepts":[{"term":"...","explanation":"..."}]}.
Each explanation is one or two plain sentences grounded in the transcript.`

const quizSystemPrompt = `You are a study assistant. Write a multiple choice quiz that checks understanding of the lecture transcript.
Respond with JSON only, shaped as {"questions":[{"question":"...","choices":["...","..."],"answer":"...","explanation":"..."}]}.
Every question has between 2 and 6 choices and the answer must be one of the choices, copied exactly.`

func lecturePrompt(title, transcript, lang string, extra string) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		fmt.Fprintf(&b, "Lecture title: %s\n", title)
	}
	if name := language.DisplayName(lang); name != "" {
		fmt.Fprintf(&b, "Respond in %s.\n", name)
	}
	if extra != "" {
		b.WriteString(extra)
		b.WriteByte('\n')
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(truncateRunes(strings.TrimSpace(transcript), maxTranscriptChars))
	return b.String()
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "\n[transcript truncated]"
}
