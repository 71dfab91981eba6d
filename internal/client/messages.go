package client

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Default form inputs shown before the user types anything.
const (
	DefaultText = "שלום! ברוכים הבאים לאפליקציית המרת טקסט לדיבור. כתבו כאן את הטקסט שתרצו לשמוע."
	DefaultTone = "ידידותי וברור"
)

// Message keys double as the English text.
const (
	msgMissingFields  = "Please fill in all fields: text to speak and reading tone."
	msgGenerateFailed = "Error while generating the text: %s"
	msgUnexpected     = "An unexpected error occurred."
	msgServerDefault  = "Failed to process request on server."
)

var supportedLanguages = []language.Tag{language.Hebrew, language.English}

var hebrew = map[string]string{
	msgMissingFields:  "נא למלא את כל השדות: טקסט לדיבור ואווירת הקראה.",
	msgGenerateFailed: "שגיאה ביצירת הטקסט: %s",
	msgUnexpected:     "אירעה שגיאה לא צפויה.",
	msgServerDefault:  "עיבוד הבקשה בשרת נכשל.",
}

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.Hebrew))
	for key, msg := range hebrew {
		_ = b.SetString(language.Hebrew, key, msg)
		_ = b.SetString(language.English, key, key)
	}
	return b
}

// newPrinter resolves lang against the supported set. Unknown or empty
// languages fall back to Hebrew.
func newPrinter(lang string) *message.Printer {
	tag := language.Hebrew
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, conf := language.NewMatcher(supportedLanguages).Match(parsed)
			if conf != language.No {
				tag = supportedLanguages[idx]
			}
		}
	}
	return message.NewPrinter(tag, message.Catalog(newCatalog()))
}
