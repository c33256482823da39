package llm

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
)

const (
	ModelT1     = "hunyuan-t1-latest"
	ModelTurboS = "hunyuan-turbos-latest"
)

// DefaultModels is the upstream model catalog, fallback first.
var DefaultModels = []string{ModelT1, ModelTurboS}

// Translator maps client requests onto the upstream request shape.
type Translator struct {
	models   []string
	known    map[string]struct{}
	fallback string
	newID    func() string
}

// NewTranslator builds a translator for the given catalog. Unknown model
// names resolve to fallback, which is added to the catalog if missing.
func NewTranslator(models []string, fallback string) *Translator {
	if fallback == "" {
		fallback = ModelT1
	}
	if len(models) == 0 {
		models = DefaultModels
	}

	t := &Translator{
		known:    make(map[string]struct{}, len(models)+1),
		fallback: fallback,
		newID:    NewQueryID,
	}
	for _, m := range append([]string{fallback}, models...) {
		if _, dup := t.known[m]; dup {
			continue
		}
		t.known[m] = struct{}{}
		t.models = append(t.models, m)
	}
	return t
}

// NewQueryID returns a fresh 32-character hex correlation id.
func NewQueryID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Models returns the catalog in listing order.
func (t *Translator) Models() []string {
	return append([]string(nil), t.models...)
}

// DefaultModel is the caller-facing model used when a request names none.
func (t *Translator) DefaultModel() string {
	return t.fallback
}

// ResolveModel returns name when it is a known upstream model and the
// fallback model otherwise.
func (t *Translator) ResolveModel(name string) string {
	if _, ok := t.known[name]; ok {
		return name
	}
	return t.fallback
}

// SuggestModel returns the catalog entry closest to an unrecognized name.
func (t *Translator) SuggestModel(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	matches := fuzzy.Find(name, t.models)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}

// Translate builds the upstream request. Upstream is always asked to
// stream; the caller's choice is kept in ClientStream.
func (t *Translator) Translate(in *InboundRequest) *UpstreamRequest {
	callerModel := in.Model
	if callerModel == "" {
		callerModel = t.DefaultModel()
	}

	return &UpstreamRequest{
		Stream:            true,
		Model:             t.ResolveModel(callerModel),
		QueryID:           t.newID(),
		Messages:          append([]ChatMessage(nil), in.Messages...),
		StreamModeration:  true,
		EnableEnhancement: false,
		CallerModel:       callerModel,
		ClientStream:      in.Stream,
	}
}
