package generator

import (
	"regexp"
	"strings"
)

// specialTokens are tokenizer markers some backends leak into the decoded text.
var specialTokens = []string{
	"<|endoftext|>",
	"<|im_end|>",
	"<|eot_id|>",
	"<pad>",
	"<s>",
	"</s>",
}

// maxLoopWords bounds the length of a repeated word run that Clean collapses.
const maxLoopWords = 64

// wordRE matches a whitespace-delimited word.
var wordRE = regexp.MustCompile(`\S+`)

// Clean post-processes a raw model continuation: special tokens are removed,
// an echoed prompt is stripped, immediately repeated word n-grams of length
// ngram or more are collapsed, and surrounding whitespace is trimmed.
func Clean(raw, prompt string, ngram int) string {
	text := raw
	for _, tok := range specialTokens {
		text = strings.ReplaceAll(text, tok, "")
	}
	if p := strings.TrimSpace(prompt); p != "" {
		text = strings.TrimPrefix(strings.TrimLeft(text, " \t\r\n"), p)
	}
	if ngram > 0 {
		text = collapseRepeats(text, ngram)
	}
	return strings.TrimSpace(text)
}

// collapseRepeats removes word runs that repeat the run right before them,
// for run lengths from n up to maxLoopWords. Comparison ignores case.
// Whitespace preceding each kept word is preserved so line structure survives.
func collapseRepeats(text string, n int) string {
	spans := wordRE.FindAllStringIndex(text, -1)
	if len(spans) < 2*n {
		return text
	}

	// kept holds indexes into spans.
	kept := make([]int, 0, len(spans))
	norm := func(i int) string {
		s := spans[kept[i]]
		return strings.ToLower(text[s[0]:s[1]])
	}
	for i := range spans {
		kept = append(kept, i)
		for l := n; l <= maxLoopWords && 2*l <= len(kept); l++ {
			base := len(kept) - 2*l
			same := true
			for j := 0; j < l; j++ {
				if norm(base+j) != norm(base+l+j) {
					same = false
					break
				}
			}
			if same {
				kept = kept[:len(kept)-l]
				break
			}
		}
	}
	if len(kept) == len(spans) {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	sb.WriteString(text[:spans[kept[0]][0]])
	for k, idx := range kept {
		s := spans[idx]
		if k > 0 {
			prev := spans[idx-1]
			sb.WriteString(text[prev[1]:s[0]])
		}
		sb.WriteString(text[s[0]:s[1]])
	}
	return sb.String()
}
