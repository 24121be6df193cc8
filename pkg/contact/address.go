package contact

import (
	"strings"
	"unicode"

	"github.com/entrhq/inreach/pkg/types"
)

// legalSuffixes are dropped from company names before building a domain
var legalSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "limited": true, "corp": true,
	"corporation": true, "co": true, "gmbh": true, "plc": true, "sa": true,
	"ag": true, "bv": true, "srl": true, "llp": true, "pty": true,
}

// DeriveAddress builds firstname.lastname@companyslug.com from a row. It is a
// guess, not a lookup. Any missing part yields "".
func DeriveAddress(row types.ProfileRow) string {
	first := slug(row.FirstName)
	last := slug(row.LastName)
	company := companySlug(row.Company)
	if first == "" || last == "" || company == "" {
		return ""
	}
	return first + "." + last + "@" + company + ".com"
}

// Address returns the row's known email, or the derived one.
func Address(row types.ProfileRow) string {
	if email := strings.TrimSpace(row.Email); email != "" {
		return email
	}
	return DeriveAddress(row)
}

func companySlug(company string) string {
	words := strings.FieldsFunc(strings.ToLower(company), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})

	var b strings.Builder
	for i, word := range words {
		// only trailing words are treated as legal forms, so "Co Ventures" keeps "co"
		if i > 0 && legalSuffixes[word] && allSuffixes(words[i:]) {
			break
		}
		b.WriteString(slug(word))
	}
	return b.String()
}

func allSuffixes(words []string) bool {
	for _, w := range words {
		if !legalSuffixes[w] {
			return false
		}
	}
	return true
}

// slug keeps lowercase ASCII letters and digits
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
