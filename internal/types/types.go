package types

// RequestResult represents the outcome of a single HTTP call to the service
type RequestResult struct {
	Status       int    `json:"status"`
	StatusText   string `json:"statusText"`
	Body         []byte `json:"-"`
	Duration     int64  `json:"duration"`     // milliseconds
	RequestSize  int    `json:"requestSize"`  // bytes
	ResponseSize int    `json:"responseSize"` // bytes
	Error        string `json:"error,omitempty"`
}

// IsStatus reports whether the call completed with one of the given status codes
func (r *RequestResult) IsStatus(codes ...int) bool {
	if r == nil || r.Error != "" {
		return false
	}
	for _, code := range codes {
		if r.Status == code {
			return true
		}
	}
	return false
}

// TLSConfig holds TLS/mTLS settings for the HTTP transport
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"key_file,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecure,omitempty"`
}

// IsZero returns true when no TLS option is set
func (c *TLSConfig) IsZero() bool {
	return c == nil || (c.CertFile == "" && c.KeyFile == "" && c.CAFile == "" && !c.InsecureSkipVerify)
}
