package dom

import (
	"sync"

	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
)

var (
	minifier *minify.M
	once     sync.Once
)

// getMinifier returns a configured HTML minifier (singleton)
func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.Add("text/html", &mhtml.Minifier{
			KeepDocumentTags: true,
			KeepEndTags:      true,
			KeepQuotes:       true,
		})
	})
	return minifier
}

// Minify compacts HTML markup.
func Minify(markup string) (string, error) {
	return getMinifier().String("text/html", markup)
}

// MinifiedHTML renders the document and minifies the result.
func (d *Document) MinifiedHTML() (string, error) {
	s, err := d.HTML()
	if err != nil {
		return "", err
	}
	return Minify(s)
}
