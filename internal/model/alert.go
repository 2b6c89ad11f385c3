package model

// Intent is a decision to notify, produced by the signal evaluator and
// consumed immediately by the alert dispatcher.
type Intent struct {
	Instrument string   `json:"instrument"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	DedupKey   string   `json:"dedup_key"`
	Trigger    string   `json:"trigger"` // "sweep" or "ema_distance"
	Notes      []string `json:"notes"`
}
