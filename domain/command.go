package domain

type Intent string

const (
	IntentCloseTicket    Intent = "close_ticket"
	IntentLogParts       Intent = "log_parts"
	IntentRequestBilling Intent = "request_billing"
	IntentUnknown        Intent = "unknown"
)

// ExtractedCommand is the validated output of the extraction capability for
// a single event. It lives for one pipeline pass and is never persisted on
// its own.
type ExtractedCommand struct {
	Intent     Intent         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence float64        `json:"confidence"`
}

// Customer returns the customer entity, if present.
func (c ExtractedCommand) Customer() string {
	if v, ok := c.Entities["customer"].(string); ok {
		return v
	}
	return ""
}

// Parts returns the parts entity as a string slice. The extraction payload
// arrives as JSON, so the slice may be []any.
func (c ExtractedCommand) Parts() []string {
	switch v := c.Entities["parts"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Hours returns the hours entity, if present.
func (c ExtractedCommand) Hours() (float64, bool) {
	switch v := c.Entities["hours"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
