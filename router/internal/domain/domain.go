package domain

import "strings"

// Normalize lowercases the host, drops the www. prefix and the default ports. Non-default
// ports are kept, as they're a part of the site identity.
func Normalize(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")

	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == '.' || host[i] == ']' {
			break
		} else if host[i] == ':' {
			switch port := host[i+1:]; port {
			case "80", "443":
				host = host[:i]
			}

			break
		}
	}

	return host
}

// TrimPort strips the port, respecting bracketed IPv6 literals.
func TrimPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end != -1 {
			return host[:end+1]
		}

		return host
	}

	if colon := strings.IndexByte(host, ':'); colon != -1 {
		return host[:colon]
	}

	return host
}
