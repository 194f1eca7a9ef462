// Package buserr classifies decode-engine bus errors for telemetry.
package buserr

import "strings"

// Category is the coarse class of a bus error.
type Category int

const (
	// Network covers connection, timeout and resolution failures.
	Network Category = iota
	// Codec covers decode, negotiation and missing-plugin failures.
	Codec
	// Auth covers authentication and authorization failures.
	Auth
	// Resource covers device and memory failures (busy camera, no buffers).
	Resource
	// Unknown is everything else.
	Unknown
)

// NumCategories sizes per-category counter arrays.
const NumCategories = int(Unknown) + 1

// Categories lists every category in counter order.
var Categories = []Category{Network, Codec, Auth, Resource, Unknown}

// String returns a human-readable representation of the category
func (c Category) String() string {
	switch c {
	case Network:
		return "network"
	case Codec:
		return "codec"
	case Auth:
		return "auth"
	case Resource:
		return "resource"
	default:
		return "unknown"
	}
}

// Keyword tables, checked in priority order: auth is the most specific,
// network the most generic.
var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "password", "username",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "caps",
		"h264", "h265", "mjpeg", "jpeg", "not negotiated", "no decoder",
		"missing plugin", "no element",
	}
	resourceKeywords = []string{
		"device busy", "busy", "no space", "out of memory", "cannot allocate",
		"permission denied", "no such device", "v4l2", "nvbuf",
	}
	networkKeywords = []string{
		"connection", "timeout", "unreachable", "network", "dns", "resolve",
		"socket", "tcp", "udp", "rtsp", "could not connect", "failed to connect",
	}
)

// Classify categorizes a bus error from its message and debug text.
// Matching is case-insensitive keyword search; go-gst does not expose the
// GError domain.
func Classify(text, debug string) Category {
	combined := strings.ToLower(text + " " + debug)
	if strings.TrimSpace(combined) == "" {
		return Unknown
	}

	switch {
	case containsAny(combined, authKeywords):
		return Auth
	case containsAny(combined, codecKeywords):
		return Codec
	case containsAny(combined, resourceKeywords):
		return Resource
	case containsAny(combined, networkKeywords):
		return Network
	default:
		return Unknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
