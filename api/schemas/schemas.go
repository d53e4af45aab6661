package schemas

type OutputCheck struct {
	Location string   `json:"location"`
	Key      string   `json:"key"`
	Status   string   `json:"status"`
	Params   []string `json:"params,omitempty"`
}

type OutputROA struct {
	Prefix    string `json:"prefix"`
	MaxLength int    `json:"max-length"`
}

// Generating rest of data
type OutputRes struct {
	Type           string `json:"type"`
	SubjectKeyId   string `json:"subject-key-id,omitempty"`
	AuthorityKeyId string `json:"authority-key-id,omitempty"`
	Path           string `json:"path"`

	Resources string       `json:"resources,omitempty"`
	ROAs      []*OutputROA `json:"roas,omitempty"`
	ASN       uint32       `json:"asn,omitempty"`
	ValidFrom int          `json:"validfrom,omitempty"`
	ValidTo   int          `json:"validto,omitempty"`
	Serial    string       `json:"serial,omitempty"`

	FileList       []string `json:"mft-files,omitempty"`
	ManifestNumber string   `json:"mft-number,omitempty"`
	ThisUpdate     int      `json:"mft-thisupdate,omitempty"`
	NextUpdate     int      `json:"mft-nextupdate,omitempty"`
}

type OutputError struct {
	Type     string   `json:"type"`
	Location string   `json:"location"`
	Keys     []string `json:"keys"`
	Message  string   `json:"message"`
}

type ReportMetadata struct {
	Generated int    `json:"generated"`
	TA        string `json:"ta,omitempty"`
	Explored  int    `json:"explored"`
	Valid     int    `json:"valid"`
	Failures  int    `json:"failures"`
	Warnings  int    `json:"warnings"`
}

// ReportJSON is the full result of a validation run.
type ReportJSON struct {
	Metadata  ReportMetadata `json:"metadata"`
	Checks    []*OutputCheck `json:"checks"`
	Resources []*OutputRes   `json:"resources"`
	Errors    []*OutputError `json:"errors,omitempty"`
}

type OutputRoute struct {
	Prefix   string       `json:"prefix"`
	ASN      uint32       `json:"asn"`
	State    string       `json:"state"`
	Matching []*OutputVRP `json:"matching"`
}

type OutputVRP struct {
	Prefix    string `json:"prefix"`
	MaxLength int    `json:"max-length"`
	ASN       uint32 `json:"asn"`
}
