package client

// ErrorMessage pairs an HTTP status with the underlying error so handlers
// can relay upstream failures with the right status code.
type ErrorMessage struct {
	StatusCode int
	Error      error
}

// UsableModel is one entry of the GetUsableModels response.
type UsableModel struct {
	ModelID          string   `json:"modelId"`
	DisplayModelID   string   `json:"displayModelId,omitempty"`
	Aliases          []string `json:"aliases,omitempty"`
	DisplayName      string   `json:"displayName,omitempty"`
	DisplayNameShort string   `json:"displayNameShort,omitempty"`
}

type usableModelsResponse struct {
	Models []UsableModel `json:"models"`
}

type defaultModelResponse struct {
	DefaultModel string `json:"defaultModel"`
}
