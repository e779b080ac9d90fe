package util

import (
    "crypto/sha256"
    "encoding/hex"
    "strconv"
    "strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    v, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return v
}

// ParseFloatDefault parses string to float64 or returns default if empty/invalid.
func ParseFloatDefault(s string, def float64) float64 {
    if s == "" {
        return def
    }
    v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
    if err != nil {
        return def
    }
    return v
}

// ContentHash returns a stable hex digest for deduplicating text content.
func ContentHash(parts ...string) string {
    h := sha256.New()
    for _, p := range parts {
        h.Write([]byte(p))
        h.Write([]byte{0})
    }
    return hex.EncodeToString(h.Sum(nil))
}
