package models

import "errors"

// ErrSameSensor rejects an assignment that maps both roles to one sensor.
var ErrSameSensor = errors.New("chamber and meat cannot share a sensor")

// WiFiCredentials are the station-mode network credentials.
type WiFiCredentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"-"`
}

// SensorAssignment maps logical channels to physical sensor indices.
type SensorAssignment struct {
	Chamber int `json:"chamber"`
	Meat    int `json:"meat"`
}

// Valid enforces distinct, non-negative indices.
func (a SensorAssignment) Valid() bool {
	return a.Chamber >= 0 && a.Meat >= 0 && a.Chamber != a.Meat
}

// BackupRecord is the JSON body of a /backup/*.bak snapshot.
type BackupRecord struct {
	ProfilePath string `json:"profile_path"`
	WiFiSSID    string `json:"wifi_ssid"`
	Timestamp   int64  `json:"backup_timestamp"`
}
