package utils

import "time"

// Cloudtime formats t the way the terminal firmware expects in reg and
// sendlog replies: "YYYY-MM-DD HH:MM:SS" in UTC.
func Cloudtime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
