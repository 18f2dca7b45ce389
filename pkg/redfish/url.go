package redfish

import "strings"

// normalizeEndpoint ensures the endpoint carries a scheme; BMC Redfish
// services are https-only in practice.
func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimSuffix(endpoint, "/")
	}
	return "https://" + strings.TrimSuffix(endpoint, "/")
}

// BuildRedfishURL constructs a Redfish URL by combining an endpoint with a
// path, avoiding a double slash between them.
func BuildRedfishURL(endpoint, path string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return endpoint + path
}
