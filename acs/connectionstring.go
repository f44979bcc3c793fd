package acs

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidConnectionString = errors.New("acs: invalid connection string")

type ConnectionString struct {
	Endpoint  *url.URL
	AccessKey []byte
}

// ParseConnectionString parses "endpoint=https://<resource>.communication.azure.com/;accesskey=<base64>".
// Keys are case insensitive.
func ParseConnectionString(s string) (cs ConnectionString, err error) {
	var endpoint, accessKey string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return cs, fmt.Errorf("%w: segment %q has no value", ErrInvalidConnectionString, k)
		}
		switch strings.ToLower(k) {
		case "endpoint":
			endpoint = v
		case "accesskey":
			accessKey = v
		}
	}
	if endpoint == "" {
		return cs, fmt.Errorf("%w: missing endpoint", ErrInvalidConnectionString)
	}
	if accessKey == "" {
		return cs, fmt.Errorf("%w: missing accesskey", ErrInvalidConnectionString)
	}
	cs.Endpoint, err = url.Parse(endpoint)
	if err != nil || cs.Endpoint.Scheme == "" || cs.Endpoint.Host == "" {
		return cs, fmt.Errorf("%w: invalid endpoint %q", ErrInvalidConnectionString, endpoint)
	}
	cs.Endpoint.Path = strings.TrimSuffix(cs.Endpoint.Path, "/")
	cs.AccessKey, err = base64.StdEncoding.DecodeString(accessKey)
	if err != nil {
		return cs, fmt.Errorf("%w: accesskey is not base64: %v", ErrInvalidConnectionString, err)
	}
	return cs, nil
}
