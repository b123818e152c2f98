package stage

import (
	"encoding/json"
	"fmt"
	"strings"

	"studyhub/internal/ledger"
	"studyhub/internal/services/pdf"
)

// BuildSection converts a stored stage result into a document section.
func BuildSection(kind ledger.Kind, stage ledger.Stage, payload []byte) (pdf.Section, error) {
	key, heading := SectionFor(kind, stage)
	if key == "" {
		return pdf.Section{}, fmt.Errorf("stage %s does not contribute a section", stage)
	}
	section := pdf.Section{Key: key, Heading: heading}

	switch stage {
	case ledger.StageConcepts:
		var doc ConceptList
		if err := json.Unmarshal(payload, &doc); err != nil {
			return pdf.Section{}, fmt.Errorf("decode concepts: %w", err)
		}
		for _, concept := range doc.Concepts {
			section.Items = append(section.Items, fmt.Sprintf("%s: %s", strings.TrimSpace(concept.Term), strings.TrimSpace(concept.Explanation)))
		}
	case ledger.StageQuiz:
		var doc Quiz
		if err := json.Unmarshal(payload, &doc); err != nil {
			return pdf.Section{}, fmt.Errorf("decode quiz: %w", err)
		}
		var answers []string
		for i, q := range doc.Questions {
			var b strings.Builder
			fmt.Fprintf(&b, "%d. %s", i+1, strings.TrimSpace(q.Question))
			for j, choice := range q.Choices {
				fmt.Fprintf(&b, "\n   %c) %s", 'a'+rune(j), strings.TrimSpace(choice))
			}
			section.Paragraphs = append(section.Paragraphs, b.String())
			answer := fmt.Sprintf("%d. %s", i+1, strings.TrimSpace(q.Answer))
			if explanation := strings.TrimSpace(q.Explanation); explanation != "" {
				answer += " - " + explanation
			}
			answers = append(answers, answer)
		}
		if len(answers) > 0 {
			section.Paragraphs = append(section.Paragraphs, "Answers:\n"+strings.Join(answers, "\n"))
		}
	default:
		section.Paragraphs = []string{stripMarkdown(string(payload))}
	}
	return section, nil
}

// stripMarkdown drops heading and emphasis markers the PDF fonts cannot style.
func stripMarkdown(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimLeft(trimmed, "#")
		if strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "- ") {
			trimmed = "• " + trimmed[2:]
		}
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "__", "")
		lines[i] = strings.TrimSpace(trimmed)
	}
	return strings.Join(lines, "\n")
}
