package translator

import "openai-llm-bridge/internal/models"

const (
	objectList  = "list"
	objectModel = "model"

	// ownedByPlaceholder fills owned_by; the backend has no notion of ownership.
	ownedByPlaceholder = "Not specified"
)

// ModelList is the OpenAI /v1/models response.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// ModelEntry is a single model in a ModelList.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created uint64 `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// FromInternalList maps the backend listing, keeping its order. An empty listing
// yields an empty data array, never null.
func FromInternalList(resp *models.ListResponse) ModelList {
	data := make([]ModelEntry, 0, len(resp.Models))
	for _, m := range resp.Models {
		data = append(data, ModelEntry{
			ID:      m.Name,
			Object:  objectModel,
			Created: millisToSeconds(m.ModifiedAt),
			OwnedBy: ownedByPlaceholder,
		})
	}
	return ModelList{Object: objectList, Data: data}
}

// ModelCard is the response for a single model lookup.
type ModelCard struct {
	ModelEntry

	Details    ModelCardDetails `json:"details"`
	License    string           `json:"license"`
	Parameters string           `json:"parameters"`
	Template   string           `json:"template"`
	System     string           `json:"system"`
}

// ModelCardDetails carries models.ModelDetails unchanged.
type ModelCardDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ShowRequest builds the backend request for a single model lookup.
func ShowRequest(model string) models.ShowRequest {
	return models.ShowRequest{
		Name:    model,
		Model:   model,
		Options: []models.Option{},
	}
}

// FromInternalShow maps a backend model description. The backend reports no
// modification time here, so created is 0.
func FromInternalShow(model string, resp *models.ShowResponse) ModelCard {
	families := resp.Details.Families
	if families == nil {
		families = []string{}
	}
	return ModelCard{
		ModelEntry: ModelEntry{
			ID:      model,
			Object:  objectModel,
			OwnedBy: ownedByPlaceholder,
		},
		Details: ModelCardDetails{
			Format:            resp.Details.Format,
			Family:            resp.Details.Family,
			Families:          families,
			ParameterSize:     resp.Details.ParameterSize,
			QuantizationLevel: resp.Details.QuantizationLevel,
		},
		License:    resp.License,
		Parameters: resp.Parameters,
		Template:   resp.Template,
		System:     resp.System,
	}
}
