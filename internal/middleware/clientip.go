package middleware

import "strings"

// AnonymizeIP truncates an IP address before it is ever written to a
// log line: the first three octets of an IPv4 address (a /24) or the
// first hextet of an IPv6 address. Session tokens and API-key
// plaintext never reach the log at all; this is the analogous
// discipline for client IPs.
func AnonymizeIP(ip string) string {
	if ip == "" {
		return ""
	}
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) > 0 && parts[0] != "" {
			return parts[0] + "::"
		}
		return "::"
	}
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return parts[0] + "." + parts[1] + "." + parts[2] + ".0/24"
	}
	return ip
}
