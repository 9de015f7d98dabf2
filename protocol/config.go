package protocol

// ReaderConfig is the reader configuration as exposed by
// GET /api/v1/config.
type ReaderConfig struct {
	Src        string `json:"src"`
	RecordType string `json:"recordType"`
	MediaType  string `json:"mediaType"`
	Mode       string `json:"mode"`
	Verbose    bool   `json:"verbose"`
	Sound      bool   `json:"sound"`
}

// ReaderConfigUpdate is the body of PUT /api/v1/config. Absent fields keep
// their current value.
type ReaderConfigUpdate struct {
	Src        *string `json:"src,omitempty"`
	RecordType *string `json:"recordType,omitempty"`
	MediaType  *string `json:"mediaType,omitempty"`
	Mode       *string `json:"mode,omitempty"`
	Verbose    *bool   `json:"verbose,omitempty"`
	Sound      *bool   `json:"sound,omitempty"`
}
