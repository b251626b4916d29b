package gen

import (
	"go/token"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// acronyms are rendered upper case in Go identifiers.
var acronyms = map[string]bool{
	"ACL": true, "API": true, "ASCII": true, "CPU": true, "CSS": true,
	"DNS": true, "EOF": true, "GUID": true, "HTML": true, "HTTP": true,
	"HTTPS": true, "ID": true, "IP": true, "JSON": true, "LHS": true,
	"QPS": true, "RAM": true, "RHS": true, "RPC": true, "SLA": true,
	"SMTP": true, "SQL": true, "SSH": true, "TCP": true, "TLS": true,
	"TTL": true, "UDP": true, "UI": true, "UID": true, "URI": true,
	"URL": true, "UTF8": true, "UUID": true, "VM": true, "XML": true,
	"XMPP": true, "XSRF": true, "XSS": true,
}

// pascal converts a column or relation name to an exported Go identifier:
// "author_id" becomes "AuthorID" and "api_url" becomes "APIURL".
func pascal(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	// A Caser is stateful and must not be shared across goroutines.
	title := cases.Title(language.English, cases.NoLower)
	var b strings.Builder
	for _, w := range words {
		upper := strings.ToUpper(w)
		switch {
		case acronyms[upper]:
			b.WriteString(upper)
		case len(w) > 1 && strings.HasSuffix(w, "s") && acronyms[upper[:len(upper)-1]]:
			b.WriteString(upper[:len(upper)-1] + "s")
		default:
			b.WriteString(title.String(w))
		}
	}
	return b.String()
}

// packageName returns the package name of a model: its name in lower case.
func packageName(model string) (string, bool) {
	pkg := strings.ToLower(model)
	return pkg, token.IsIdentifier(pkg)
}
