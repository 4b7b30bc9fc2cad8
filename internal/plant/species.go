package plant

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeScientificName prepares a binomial for exact catalog lookups:
// NFC form, trimmed, inner whitespace collapsed to single spaces.
//
//   - "  Monstera   deliciosa " -> "Monstera deliciosa"
//   - decomposed diacritics are composed so both spellings match
func NormalizeScientificName(name string) string {
	name = norm.NFC.String(name)
	return strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " ")
}

// StripAuthority drops a trailing botanical authority such as "Liebm." or
// "(L.) Schott" so the name matches catalog entries stored without it.
// Names of one or two words are returned unchanged.
func StripAuthority(name string) string {
	fields := strings.Fields(NormalizeScientificName(name))
	if len(fields) <= 2 {
		return strings.Join(fields, " ")
	}

	keep := fields[:2]
	// infraspecific ranks carry a third epithet
	if rank := fields[2]; (rank == "var." || rank == "subsp." || rank == "f.") && len(fields) >= 4 {
		keep = fields[:4]
	}
	return strings.Join(keep, " ")
}
