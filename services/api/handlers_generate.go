package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"stagegen/services/generator"
)

type generateResponse struct {
	Success    bool                      `json:"success"`
	Parameters generator.Parameters      `json:"parameters"`
	Links      map[string]string         `json:"links"`
	Paths      map[string]string         `json:"paths"`
	Debug      *generator.DescriptorInfo `json:"debug,omitempty"`
}

// firstQuery returns the first non-empty value among keys.
func firstQuery(r *http.Request, keys ...string) string {
	q := r.URL.Query()
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func (a *API) handleGenerate(debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := generator.Request{
			ProductID: firstQuery(r, "productId", "prd"),
			GUID:      firstQuery(r, "guid"),
			Serial:    firstQuery(r, "serial", "sn"),
			BaseURL:   a.baseURL(r),
		}

		res, err := a.gen.Generate(r.Context(), req)
		if err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				a.config.Logger.Printf("ERROR generate %s: %v", req.ProductID, err)
			}
			respondError(w, status, err)
			return
		}

		resp := generateResponse{
			Success:    true,
			Parameters: res.Parameters,
			Links:      res.Links(),
			Paths:      res.Paths(),
		}
		if debug {
			d := res.Descriptor
			resp.Debug = &d
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func (a *API) baseURL(r *http.Request) string {
	if a.config.PublicBaseURL != "" {
		return a.config.PublicBaseURL
	}
	return RequestBaseURL(r, a.config.TrustProxyHeaders)
}

// RequestBaseURL derives scheme://host from the request. X-Forwarded-Proto and
// X-Forwarded-Host are honoured only when trustProxy is set. It returns ""
// when the request carries no host.
func RequestBaseURL(r *http.Request, trustProxy bool) string {
	var host, scheme string
	if trustProxy {
		host = strings.TrimSpace(firstHeaderValue(r.Header.Get("X-Forwarded-Host")))
		scheme = strings.ToLower(strings.TrimSpace(firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))))
	}
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}

	if scheme != "http" && scheme != "https" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		return v[:i]
	}
	return v
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generator.ErrMissingParameter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
