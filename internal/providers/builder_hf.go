package providers

import "encoding/json"

// FormatHFInference is the Hugging Face hosted inference request format.
const FormatHFInference = "hf-inference"

func init() {
	RegisterDefinition(Definition{
		Name:        FormatHFInference,
		Description: "Hugging Face inference API (text-to-image)",
		Builder:     buildHFInferenceBody,
	})
}

type hfInferenceRequest struct {
	Inputs  string             `json:"inputs"`
	Options hfInferenceOptions `json:"options"`
}

type hfInferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

func buildHFInferenceBody(prompt string) ([]byte, error) {
	return json.Marshal(hfInferenceRequest{
		Inputs:  prompt,
		Options: hfInferenceOptions{WaitForModel: true},
	})
}
