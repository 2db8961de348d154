package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptionsFromEnv reads service-account credentials from
// GOOGLE_APPLICATION_CREDENTIALS_JSON (inline) or GOOGLE_APPLICATION_CREDENTIALS
// (inline JSON or a file path). No credentials means application defaults.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// APIOptions builds options for key-authenticated REST APIs. An endpoint
// override (tests, proxies) disables credential lookup.
func APIOptions(apiKey, endpoint string) []option.ClientOption {
	var opts []option.ClientOption
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
		if apiKey == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		return append(opts, option.WithAPIKey(apiKey))
	}
	if endpoint != "" {
		return opts
	}
	return append(opts, ClientOptionsFromEnv()...)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
