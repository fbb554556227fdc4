package internal

import "time"

// TranslationRequest is the persisted record of one contract submitted to the pipeline.
type TranslationRequest struct {
	ID            string    `json:"id"`
	ContractText  string    `json:"contract_text"`
	SourceLang    string    `json:"source_lang"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	MaxIterations int       `json:"max_iterations"`
	Timestamp     time.Time `json:"timestamp"`
}
