// Package normalizers provides the pure string normalization used to build
// identity match keys. Every function is total and idempotent.
package normalizers

import (
	"net/url"
	"strings"
	"unicode"
)

// companySuffixes are legal-entity words stripped from the end of company
// names. Whole words only; the leading space prevents partial matches.
var companySuffixes = []string{
	" incorporated", " corporation", " holdings", " partners", " limited",
	" company", " group", " corp", " inc", " llc", " ltd", " co", " lp", " gp",
}

// personSuffixes are generational and honorific words stripped from the end
// of person names. Checked after punctuation removal, so "jr." arrives as "jr".
var personSuffixes = []string{" iii", " ii", " iv", " jr", " sr", " phd", " md", " esq"}

// CompanyName normalizes a company name for matching:
//   - lowercase, trim
//   - remove punctuation and collapse whitespace
//   - strip trailing legal suffixes (Inc, Corp, LLC, ...) until none remain
//   - strip a leading "the "
func CompanyName(s string) string {
	s = stripPunctuation(strings.ToLower(strings.TrimSpace(s)))

	for {
		stripped := s
		for _, suffix := range companySuffixes {
			if strings.HasSuffix(stripped, suffix) {
				stripped = strings.TrimSpace(stripped[:len(stripped)-len(suffix)])
			}
		}
		if stripped == s {
			break
		}
		s = stripped
	}

	for strings.HasPrefix(s, "the ") {
		s = strings.TrimPrefix(s, "the ")
	}

	return strings.TrimSpace(s)
}

// PersonName normalizes a person's name into a "first last" match key:
//   - lowercase, trim
//   - remove punctuation and collapse whitespace
//   - strip trailing generational/honorific suffixes (Jr, Sr, III, PhD, ...)
func PersonName(firstName, lastName string) string {
	s := strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName)
	s = stripPunctuation(strings.ToLower(s))

	for {
		stripped := s
		for _, suffix := range personSuffixes {
			if strings.HasSuffix(stripped, suffix) {
				stripped = strings.TrimSpace(stripped[:len(stripped)-len(suffix)])
			}
		}
		if stripped == s {
			break
		}
		s = stripped
	}

	return strings.TrimSpace(s)
}

// Email normalizes an email address (lowercase, trim).
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DomainFromEmail extracts the domain part of an email address. Returns ""
// when the input has no @ or the part after it does not look like a domain.
func DomainFromEmail(email string) string {
	email = Email(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}

	domain := email[at+1:]
	if !isDomain(domain) {
		return ""
	}
	return domain
}

// DomainFromURL extracts the registrable host from a URL. A missing scheme is
// tolerated ("acme.com/about" works); a leading "www." is stripped. Returns ""
// when the input cannot be parsed or has no host.
func DomainFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if !isDomain(host) {
		return ""
	}
	return host
}

// stripPunctuation keeps letters and digits, collapsing whitespace runs to a
// single space. All other runes are dropped.
func stripPunctuation(s string) string {
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(result.String())
}

// isDomain reports whether s looks like "label(.label)+" with an alphabetic
// final label of at least two characters.
func isDomain(s string) bool {
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
		for _, r := range label {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' {
				return false
			}
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	return true
}
