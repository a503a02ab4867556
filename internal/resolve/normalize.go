package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = regexp.MustCompile(
	`(?i)\s*,?\s*(LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|` +
		`CO\.?|COMPANY|LTD\.?|LIMITED|L\.?P\.?|LLP|L\.?L\.?P\.?|` +
		`PLLC|P\.?L\.?L\.?C\.?|P\.?C\.?|GMBH|S\.?A\.?|DBA|D/B/A)\s*\.?\s*$`)

var (
	multiSpace = regexp.MustCompile(`\s{2,}`)
	punct      = regexp.MustCompile(`[.,;:!?'"()\[\]{}&/\\-]+`)
	nonDigit   = regexp.MustCompile(`\D`)
)

// abbreviations expands common shorthand so "Acme Mfg" and "Acme
// Manufacturing" normalize to the same tokens.
var abbreviations = map[string]string{
	"intl":  "international",
	"natl":  "national",
	"mfg":   "manufacturing",
	"mgmt":  "management",
	"assn":  "association",
	"assoc": "association",
	"svcs":  "services",
	"svc":   "service",
	"grp":   "group",
	"bros":  "brothers",
	"dept":  "department",
	"dist":  "distributing",
}

// diacritic folding: NFD decompose, drop combining marks, NFC recompose.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldDiacritics strips accent marks so "Société" matches "Societe".
func foldDiacritics(s string) string {
	out, _, err := transform.String(foldTransform, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName lowercases, folds diacritics, strips punctuation and legal
// entity suffixes, and expands common abbreviations.
func NormalizeName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	n = legalSuffixes.ReplaceAllString(n, "")
	n = foldDiacritics(n)
	n = strings.ToLower(n)
	n = punct.ReplaceAllString(n, " ")
	n = multiSpace.ReplaceAllString(n, " ")
	n = strings.TrimSpace(n)

	words := strings.Fields(n)
	for i, w := range words {
		if full, ok := abbreviations[w]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

// NameTokens returns the normalized name as a token set.
func NameTokens(name string) map[string]bool {
	words := strings.Fields(NormalizeName(name))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// FirstNameToken returns the first normalized token of a company name, used
// as a blocking key.
func FirstNameToken(name string) string {
	n := NormalizeName(name)
	if i := strings.IndexByte(n, ' '); i >= 0 {
		return n[:i]
	}
	return n
}

// NormalizeDomain strips protocol, www prefix, path, and port from a URL or
// bare domain.
func NormalizeDomain(rawURL string) string {
	d := strings.TrimSpace(rawURL)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}

// NormalizePhone reduces a phone number to its last 10 digits, the blocking
// and comparison key for phone matching. Returns "" when fewer than 7 digits
// survive.
func NormalizePhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) < 7 {
		return ""
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}
