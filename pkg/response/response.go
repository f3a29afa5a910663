package response

// JSONResponse is the envelope for non-2xx API responses.
type JSONResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func Error(code, message string, details any) JSONResponse {
	return JSONResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}
