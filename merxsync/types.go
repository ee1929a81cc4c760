package merxsync

import "encoding/json"

type SyncModules struct {
	Receivings bool `json:"receivings"`
	Sales      bool `json:"sales"`
	Customers  bool `json:"customers"`
}

func DefaultModules() SyncModules {
	return SyncModules{
		Receivings: true,
		Sales:      true,
		Customers:  true,
	}
}

func NormalizeModules(mod SyncModules) SyncModules {
	// The analysis snapshot is only as good as the event tables, so the two
	// ingestion modules are always on.
	mod.Receivings = true
	mod.Sales = true
	return mod
}

func DecodeModules(raw []byte) SyncModules {
	if len(raw) == 0 {
		return DefaultModules()
	}
	var mod SyncModules
	if err := json.Unmarshal(raw, &mod); err != nil {
		return DefaultModules()
	}
	return NormalizeModules(mod)
}

func EncodeModules(mod SyncModules) []byte {
	b, _ := json.Marshal(NormalizeModules(mod))
	return b
}

type TriggerSyncRequest struct {
	Modules      SyncModules `json:"modules"`
	LookbackDays int         `json:"lookbackDays" validate:"omitempty,gte=1,lte=1095"`
}

type StatusResponse struct {
	LastRun           *SyncRunResponse `json:"lastRun"`
	InventorySyncedAt *string          `json:"inventorySyncedAt"`
	SalesSyncedAt     *string          `json:"salesSyncedAt"`
	Modules           SyncModules      `json:"modules"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	ErrorMessage  string  `json:"errorMessage,omitempty"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	ExternalId string `json:"externalId"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId uint `json:"run_id"`
}
