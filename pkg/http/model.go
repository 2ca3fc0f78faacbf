package http

// APIResponse is the envelope every endpoint writes. Status mirrors the HTTP
// status code.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field. Field is the name the
// client sent (json, query or path parameter).
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"building_id"`
	Message string                 `json:"message,omitempty" example:"building_id is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse carries list results with their total count.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
