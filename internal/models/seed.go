package models

import "time"

// SeedRecord is a demo notification with a fixed age instead of a timestamp.
type SeedRecord struct {
	Payload Payload
	Age     time.Duration
	Read    bool
}

// DemoSeed returns the notifications a fresh demo session starts with,
// newest first.
func DemoSeed() []SeedRecord {
	return []SeedRecord{
		{
			Payload: Payload{
				Type:     TypeAlert,
				Title:    "High Risk Rockfall Detected",
				Message:  "Sensors have detected increased rockfall activity in Sector 7. Immediate attention required.",
				Location: "Sector 7, Mountain Ridge",
				Severity: SeverityHigh,
			},
			Age: 30 * time.Minute,
		},
		{
			Payload: Payload{
				Type:     TypeWarning,
				Title:    "Weather Alert",
				Message:  "Heavy rainfall expected in the next 24 hours. Monitor rockfall sensors closely.",
				Location: "All Sectors",
				Severity: SeverityMedium,
			},
			Age: 2 * time.Hour,
		},
		{
			Payload: Payload{
				Type:     TypeInfo,
				Title:    "System Maintenance Complete",
				Message:  "Scheduled maintenance on monitoring systems has been completed successfully.",
				Severity: SeverityLow,
			},
			Age:  4 * time.Hour,
			Read: true,
		},
	}
}
