package examiner

import (
	"fmt"
	"math"
	"strings"

	"voicecheck/internal/ports"
)

const examinerSystemPrompt = "You are an expert IELTS speaking examiner. Score transcripts against the official " +
	"IELTS speaking criteria. Be precise and fair. Respond only with JSON."

const phoneticSystemPrompt = "You are a pronunciation expert and ESL teacher. Provide accurate IPA phonetic " +
	"analysis and practical pronunciation guidance. Respond only with JSON."

func examPrompt(req ports.ExamRequest) string {
	words := len(strings.Fields(req.Transcript))
	rate := 0
	if req.DurationSec > 0 {
		rate = int(math.Round(float64(words) / req.DurationSec * 60))
	}
	topic := req.Topic
	if topic == "" {
		topic = "general"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "IELTS SPEAKING PART %d ASSESSMENT\n\n", req.Part)
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Duration: %d seconds\n", int(math.Round(req.DurationSec)))
	fmt.Fprintf(&b, "Word Count: %d words\n", words)
	fmt.Fprintf(&b, "Speaking Rate: %d words per minute\n\n", rate)
	fmt.Fprintf(&b, "Response Transcript:\n%q\n\n", req.Transcript)
	b.WriteString("First decide whether the response addresses the topic. An off-topic response scores at most 4.0 overall.\n")
	b.WriteString("Score Lexical Resource and Grammatical Range and Accuracy on the 0-9 band scale. ")
	b.WriteString("Overall is their average.\n\n")
	b.WriteString(`Respond with exactly this JSON: {"scores": {"lexicalResource": <band>, "grammaticalRange": <band>, "overall": <band>}}`)
	return b.String()
}

func wordPrompt(word string) string {
	return fmt.Sprintf(`Analyze the pronunciation quality of the English word %q for an intermediate ESL learner.
Consider consonant clusters, vowel distinctions, silent letters, stress patterns and R/L confusion.

Respond only with a JSON object:
{"accuracy": <0-100>, "phonemes": ["<ipa>", ...], "errors": ["<common error>", ...], "suggestions": ["<tip>", ...]}`, word)
}
