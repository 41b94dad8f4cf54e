package dashserve

import (
	"net/http"
	"strings"
)

// CORS response header names.
const (
	headerAllowOrigin  = "Access-Control-Allow-Origin"
	headerAllowMethods = "Access-Control-Allow-Methods"
	headerAllowHeaders = "Access-Control-Allow-Headers"
)

// CORSOptions captures the Cross-Origin Resource Sharing headers added to every response.
type CORSOptions struct {
	AllowOrigin    string   `json:"allow_origin,omitempty"`
	AllowedMethods []string `json:"allowed_methods,omitempty"`
	AllowedHeaders []string `json:"allowed_headers,omitempty"`
}

var (
	defaultCORSOrigin  = "*"
	defaultCORSMethods = []string{"GET", "POST", "OPTIONS"}
	defaultCORSHeaders = []string{"Content-Type"}
)

// DefaultCORSOptions returns the permissive header set the dashboard is served with.
func DefaultCORSOptions() *CORSOptions {
	return normalizeCORSOptions(&CORSOptions{})
}

// normalizeCORSOptions returns a sanitised copy with defaults filled in.
// Token order is preserved so the emitted header values stay predictable.
func normalizeCORSOptions(opts *CORSOptions) *CORSOptions {
	if opts == nil {
		opts = &CORSOptions{}
	}

	copy := &CORSOptions{
		AllowOrigin:    strings.TrimSpace(opts.AllowOrigin),
		AllowedMethods: sanitizeTokens(opts.AllowedMethods, true),
		AllowedHeaders: sanitizeTokens(opts.AllowedHeaders, false),
	}

	if copy.AllowOrigin == "" {
		copy.AllowOrigin = defaultCORSOrigin
	}
	if len(copy.AllowedMethods) == 0 {
		copy.AllowedMethods = append([]string{}, defaultCORSMethods...)
	}
	if len(copy.AllowedHeaders) == 0 {
		copy.AllowedHeaders = append([]string{}, defaultCORSHeaders...)
	}
	return copy
}

func sanitizeTokens(values []string, upper bool) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, raw := range values {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}
		if upper {
			token = strings.ToUpper(token)
		}
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}

// Apply sets the CORS headers on h, replacing any previous values.
func (c *CORSOptions) Apply(h http.Header) {
	if c == nil {
		c = DefaultCORSOptions()
	}
	h.Set(headerAllowOrigin, c.AllowOrigin)
	h.Set(headerAllowMethods, joinTokens(c.AllowedMethods))
	h.Set(headerAllowHeaders, joinTokens(c.AllowedHeaders))
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, ", ")
}
