// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package couchdb

import "github.com/prometheus/common/config"

// Auth holds the store credentials, usually taken from the userinfo part
// of the server URL.
type Auth struct {
	Username string
	Password string
}

// ToHTTPClientConfig converts the credentials to HTTP client compatible
// format.
func (a *Auth) ToHTTPClientConfig() config.HTTPClientConfig {
	conf := config.HTTPClientConfig{}
	if a.Username != "" || a.Password != "" {
		conf.BasicAuth = &config.BasicAuth{
			Username: a.Username,
			Password: config.Secret(a.Password),
		}
	}
	return conf
}
