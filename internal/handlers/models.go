package handlers

import (
	"net/http"
	"time"

	"hunyuan-gateway/internal/llm"
)

// ModelsHandler serves GET /v1/models from the translator's catalog.
type ModelsHandler struct {
	translator *llm.Translator
	ownedBy    string
	now        func() time.Time
}

func NewModelsHandler(translator *llm.Translator, ownedBy string) *ModelsHandler {
	if ownedBy == "" {
		ownedBy = "tencent"
	}
	return &ModelsHandler{
		translator: translator,
		ownedBy:    ownedBy,
		now:        time.Now,
	}
}

func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	created := h.now().Unix()

	models := h.translator.Models()
	list := llm.ModelList{
		Object: llm.ObjectList,
		Data:   make([]llm.Model, 0, len(models)),
	}
	for _, id := range models {
		list.Data = append(list.Data, llm.Model{
			ID:      id,
			Object:  llm.ObjectModel,
			Created: created,
			OwnedBy: h.ownedBy,
		})
	}
	writeJSON(w, http.StatusOK, list)
}
