package alerts

const (
	hangulBase      = 0xAC00
	hangulSyllables = 11172
	hangulFinals    = 28
)

// hasFinalConsonant reports whether r is a precomposed Hangul syllable with a final consonant (받침)
func hasFinalConsonant(r rune) bool {
	code := int(r) - hangulBase
	return code >= 0 && code < hangulSyllables && code%hangulFinals != 0
}

// withTopicParticle appends 은 or 는 to noun. An empty noun yields "는".
func withTopicParticle(noun string) string {
	runes := []rune(noun)
	if len(runes) == 0 {
		return "는"
	}
	if hasFinalConsonant(runes[len(runes)-1]) {
		return noun + "은"
	}
	return noun + "는"
}
