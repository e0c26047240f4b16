package model

// Persona is a silo-wide user identity document, resolved when assembling
// outbound notifications.
type Persona struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}
