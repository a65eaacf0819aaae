// Package normalizers provides deterministic field canonicalization for entity resolution
package normalizers

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MaxNameLength    = 255
	MaxAddressLength = 500
	minPhoneDigits   = 7
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Normalizer)
)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
	Register("nname", NormalizeName)
	Register("nemail", NormalizeEmail)
	Register("nphone", NormalizePhone)
	Register("naddress", NormalizeAddress)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value untouched.
func Apply(value, normalizer string) string {
	fn, ok := Get(normalizer)
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims and replaces internal whitespace runs with one space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var nameParticles = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "dos": {}, "das": {},
	"del": {}, "von": {}, "der": {}, "den": {},
}

// NormalizeName collapses whitespace and title-cases each token. Nobiliary particles
// stay lowercase unless they lead the name; "van" is always "Van".
func NormalizeName(s string) string {
	// Casers carry state, so each call gets its own
	caser := cases.Title(language.Und)
	return caseTokens(CollapseWhitespace(s), MaxNameLength, func(i int, tok string) string {
		lower := strings.ToLower(tok)
		switch {
		case lower == "van":
			return "Van"
		case i > 0 && isParticle(lower):
			return lower
		default:
			return caser.String(tok)
		}
	})
}

func isParticle(s string) bool {
	_, ok := nameParticles[s]
	return ok
}

// NormalizeEmail lowercases and trims an address, returning empty unless it has
// exactly one @, a non-empty atom local part, and a dotted hostname domain.
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Count(s, "@") != 1 {
		return ""
	}
	local, domain, _ := strings.Cut(s, "@")
	if !validLocalPart(local) || !validDomain(domain) {
		return ""
	}
	return s
}

func validLocalPart(local string) bool {
	if local == "" || strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	for _, r := range local {
		if !isAtomChar(r) && r != '.' {
			return false
		}
	}
	return true
}

func validDomain(domain string) bool {
	if domain == "" || !strings.Contains(domain, ".") || strings.Contains(domain, "..") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") ||
		strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") {
		return false
	}
	for _, r := range domain {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

func isAtomChar(r rune) bool {
	if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
		return true
	}
	return strings.ContainsRune("!#$%&'*+/=?^_`{|}~-", r)
}

// NormalizePhone keeps digits and a leading +. Without a +, a NANP country digit 1 is
// stripped from 11-digit numbers. Leading and trailing zero runs are removed and
// anything shorter than 7 digits is rejected.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	plus := strings.HasPrefix(s, "+")
	digits := stripZeros(DigitsOnly(s))

	if !plus && len(digits) == 11 && digits[0] == '1' {
		digits = stripZeros(digits[1:])
	}
	if len(digits) < minPhoneDigits {
		return ""
	}
	if plus {
		return "+" + digits
	}
	return digits
}

func stripZeros(s string) string {
	return strings.TrimRight(strings.TrimLeft(s, "0"), "0")
}

var addressUppercase = map[string]struct{}{
	"st": {}, "rd": {}, "ave": {}, "blvd": {}, "dr": {}, "ln": {}, "ct": {}, "cir": {},
	"pl": {}, "pkwy": {}, "hwy": {}, "sq": {}, "ter": {}, "trl": {}, "apt": {}, "ste": {},
	"po": {}, "n": {}, "s": {}, "e": {}, "w": {}, "ne": {}, "nw": {}, "se": {}, "sw": {},
}

// NormalizeAddress collapses whitespace and title-cases tokens, upper-casing street
// abbreviations and directionals. Tokens that start with a digit keep ordinal
// suffixes lowercase ("3rd") and upper-case anything else ("12B").
func NormalizeAddress(s string) string {
	caser := cases.Title(language.Und)
	return caseTokens(CollapseWhitespace(s), MaxAddressLength, func(_ int, tok string) string {
		core := strings.ToLower(strings.TrimRight(tok, ".,"))
		if _, ok := addressUppercase[core]; ok {
			return strings.ToUpper(tok)
		}
		if r, _ := utf8.DecodeRuneInString(tok); unicode.IsDigit(r) {
			return caseNumbered(tok)
		}
		return caser.String(tok)
	})
}

var ordinalSuffixes = []string{"st", "nd", "rd", "th"}

func caseNumbered(tok string) string {
	digits := strings.TrimRightFunc(tok, func(r rune) bool { return !unicode.IsDigit(r) })
	if strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		suffix := strings.ToLower(strings.TrimRight(tok[len(digits):], ".,"))
		for _, o := range ordinalSuffixes {
			if suffix == o {
				return digits + strings.ToLower(tok[len(digits):])
			}
		}
	}
	return strings.ToUpper(tok)
}

// caseTokens applies fn to every space separated token of s and keeps the
// result within n runes. Casing can add runes (ß becomes Ss), so it runs before
// the cut, and again after it on the shortened last token.
func caseTokens(s string, n int, fn func(i int, tok string) string) string {
	apply := func(s string) string {
		if s == "" {
			return ""
		}
		tokens := strings.Split(s, " ")
		for i, tok := range tokens {
			tokens[i] = fn(i, tok)
		}
		return strings.Join(tokens, " ")
	}

	out := apply(s)
	for i := 0; i < 3 && utf8.RuneCountInString(out) > n; i++ {
		out = apply(truncate(out, n))
	}
	return truncate(out, n)
}

// truncate cuts s to at most n runes and trims any trailing space left by the cut
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
