package embedding

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/photo-triage/internal/ai"
)

// Translating translates non-English text queries before embedding them.
type Translating struct {
	next       Gateway
	translator ai.Translator
	log        logrus.FieldLogger
}

// NewTranslating wraps g with query translation. A nil translator returns g unchanged.
func NewTranslating(g Gateway, translator ai.Translator, log logrus.FieldLogger) Gateway {
	if translator == nil {
		return g
	}
	return &Translating{next: g, translator: translator, log: log}
}

func (t *Translating) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	return t.next.EmbedImage(ctx, img)
}

// EmbedText embeds the translated query, or the original one when translation
// is not needed or fails.
func (t *Translating) EmbedText(ctx context.Context, text string) ([]float32, error) {
	query := ai.NormalizeQuery(text)
	if ai.NeedsTranslation(query) {
		res, err := t.translator.Translate(ctx, query)
		switch {
		case err != nil:
			t.log.WithError(err).WithField("query", query).Warn("query translation failed, embedding original text")
		case res.Text != "":
			t.log.WithFields(logrus.Fields{
				"query":      query,
				"translated": res.Text,
				"provider":   t.translator.Name(),
				"cost_usd":   res.Cost,
			}).Debug("translated search query")
			query = res.Text
		}
	}
	return t.next.EmbedText(ctx, query)
}
