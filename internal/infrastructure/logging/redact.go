package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// redactKeep is the number of leading characters RedactKey leaves visible.
const redactKeep = 6

// DeviceRefPrefix marks a value produced by DeviceRef.
const DeviceRefPrefix = "dev_"

// deviceRefLen is the number of hex digits of the key digest kept.
const deviceRefLen = 16

// RedactKey shortens a secret-bearing identifier (such as a scanner API key)
// to a prefix suitable for logs.
func RedactKey(key string) string {
	if len(key) <= redactKeep {
		return key
	}
	return key[:redactKeep] + "..."
}

// DeviceRef derives a stable, non-secret reference for a scanner API key.
// Records that leave the process (audit rows, MQTT events, metrics) carry
// the reference instead of the key, so they can still be grouped and
// filtered per device. An empty key maps to an empty reference.
func DeviceRef(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return DeviceRefPrefix + hex.EncodeToString(sum[:])[:deviceRefLen]
}

// NormalizeDeviceRef accepts either a raw key or a reference and returns
// the reference.
func NormalizeDeviceRef(v string) string {
	if strings.HasPrefix(v, DeviceRefPrefix) && len(v) == len(DeviceRefPrefix)+deviceRefLen {
		return v
	}
	return DeviceRef(v)
}
