package domain

// Station identifies a transit station on a route
type Station struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Route is the route context the saga carries through ticket issuance.
// Route search and pricing happen upstream; the saga only needs the
// endpoints and the transfer count.
type Route struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	Code          string  `json:"code,omitempty"`
	TransportMode string  `json:"transport_mode,omitempty"`
	SourceStation Station `json:"source_station"`
	DestStation   Station `json:"destination_station"`
	TransferCount int     `json:"transfer_count"`
}
