package pipeline

import (
	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	minjs "github.com/tdewolff/minify/v2/js"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	mediaJS  = "application/javascript"
	mediaCSS = "text/css"
)

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.Add(mediaJS, &minjs.Minifier{})
	m.Add(mediaCSS, &mincss.Minifier{})
	return m
}

// Minify minifies a bundled chunk. The chunk must parse as JavaScript.
func Minify(code string) (string, error) {
	return minifyAs(mediaJS, code)
}

// MinifyCSS minifies a rendered stylesheet.
func MinifyCSS(code string) (string, error) {
	return minifyAs(mediaCSS, code)
}

func minifyAs(media, code string) (string, error) {
	out, err := minifier.String(media, code)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to minify"), "media", media)
	}
	return out + "\n", nil
}

// minifyOrKeep minifies code and keeps the input when it does not parse,
// reporting the skip as a warning on the stage's event stream.
func (e *env) minifyOrKeep(stage domain.Stage, item, media, code string) string {
	out, err := minifyAs(media, code)
	if err != nil {
		e.events.Emit(domain.Event{
			Stage:    string(stage),
			Decision: domain.DecisionMinifySkipped,
			Reason:   err.Error(),
			Level:    domain.LogLevelWarn,
			Data:     map[string]any{"chunk": item},
		})
		return code
	}
	return out
}
