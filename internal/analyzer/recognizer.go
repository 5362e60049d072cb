package analyzer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type compiledPattern struct {
	name  string
	re    *regexp.Regexp
	score float64
}

// recognizer is the compiled, immutable runtime form of a RecognizerConfig.
type recognizer struct {
	name      string
	entity    string
	patterns  []compiledPattern
	denyList  *regexp.Regexp
	denyScore float64
	validator *validator
	// contexts maps language to context words. An empty map means the
	// recognizer serves every language without context words.
	contexts map[string][]string
}

// servesLanguage reports whether the recognizer applies to a language.
func (r *recognizer) servesLanguage(lang string) bool {
	if len(r.contexts) == 0 {
		return true
	}
	_, ok := r.contexts[lang]
	return ok
}

// analyze runs every pattern and the deny list over text. Scores below
// minScore are dropped after validation and context enhancement.
func (r *recognizer) analyze(text, lang string, minScore float64) []RecognizerResult {
	var results []RecognizerResult
	contextWords := r.contexts[lang]

	for _, p := range r.patterns {
		for _, m := range p.re.FindAllStringIndex(text, -1) {
			if m[0] == m[1] {
				continue
			}
			score := p.score
			if r.validator != nil {
				ok := r.validator.check(text[m[0]:m[1]])
				if !ok {
					continue
				}
				if r.validator.certain {
					score = MaxScore
				}
			}
			score = enhanceScoreWithContext(text, m[0], m[1], score, contextWords)
			if score < minScore {
				continue
			}
			results = append(results, RecognizerResult{
				EntityType:     r.entity,
				Start:          m[0],
				End:            m[1],
				Score:          score,
				RecognizerName: r.name,
			})
		}
	}

	if r.denyList != nil && r.denyScore >= minScore {
		for _, m := range r.denyList.FindAllStringIndex(text, -1) {
			results = append(results, RecognizerResult{
				EntityType:     r.entity,
				Start:          m[0],
				End:            m[1],
				Score:          r.denyScore,
				RecognizerName: r.name,
			})
		}
	}

	return results
}

// enhanceScoreWithContext boosts a match's base score if context words are found
// within +/- ContextWindowChars bytes of the match. This mirrors Presidio's
// LemmaContextAwareEnhancer with a fixed context_similarity_factor.
func enhanceScoreWithContext(text string, start, end int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 || baseScore >= MaxScore {
		return baseScore
	}
	lo := start - ContextWindowChars
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextWindowChars
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:start] + " " + text[end:hi])

	for _, cw := range contextWords {
		if containsWord(window, strings.ToLower(cw)) {
			boosted := baseScore + ContextSimilarityFactor
			if boosted > MaxScore {
				boosted = MaxScore
			}
			return boosted
		}
	}
	return baseScore
}

// containsWord reports whether word occurs in s bounded on both sides by a
// non-alphanumeric rune or the string edge.
func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for i := 0; i <= len(s)-len(word); {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(s) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		i = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
