package catalog

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {},
	"and": {}, "any": {}, "appropriate": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "been": {}, "being": {}, "both": {}, "but": {}, "by": {},
	"can": {}, "considered": {}, "document": {}, "documented": {}, "each": {},
	"ensure": {}, "establish": {}, "established": {}, "for": {}, "from": {},
	"has": {}, "have": {}, "how": {}, "implement": {}, "in": {}, "include": {},
	"includes": {}, "including": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"maintain": {}, "maintained": {}, "manufacturer": {}, "may": {}, "more": {},
	"not": {}, "of": {}, "on": {}, "or": {}, "other": {}, "per": {},
	"provide": {}, "required": {}, "requirements": {}, "shall": {}, "should": {},
	"such": {}, "that": {}, "the": {}, "their": {}, "these": {}, "this": {},
	"those": {}, "through": {}, "throughout": {}, "to": {}, "under": {},
	"used": {}, "using": {}, "was": {}, "were": {}, "when": {}, "where": {},
	"which": {}, "will": {}, "with": {}, "within": {},
}

func isStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}
