// Package core provides shared constants, key resolution and the error
// taxonomy for the planning CLI.
package core

import (
	"os"
	"path/filepath"
	"time"
)

// Portal configuration
const (
	PortalBaseURL     = "https://pass.imt-atlantique.fr/"
	PortalPlanningURL = "https://pass.imt-atlantique.fr/Eplug/Agenda/Agenda.asp"
	PortalDetailURL   = "https://pass.imt-atlantique.fr/Eplug/Agenda/Eve-Det.asp?NumEve=%s"
	PortalDomain      = "pass.imt-atlantique.fr"
	DefaultTZ         = "Europe/Paris"
)

// Date formats
const (
	KeyDateFmt     = "02/01/2006"
	CaptureTimeFmt = "2006-01-02 - 15:04:05"
)

// Key resolution
const (
	// MaxOffsetLen bounds the length of a relative week offset such as "-12".
	MaxOffsetLen = 5
	// PeriodDays is the number of calendar days in one relative offset unit.
	PeriodDays = 7
)

// Defaults
const (
	DefaultCacheTime         = time.Hour
	DefaultSettleDelay       = 5 * time.Second
	DefaultAcquireTimeout    = 3 * time.Minute
	DefaultDetailConcurrency = 4
	DefaultDetailRPS         = 5
	ArtifactExt              = ".png"

	// MaxMessageLen is the longest error text the front end shows to a user.
	MaxMessageLen = 1800
)

// ScreenshotsRoot returns the default artifact directory.
func ScreenshotsRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return filepath.Join(wd, "screenshots")
}

// Version is the current CLI version.
const Version = "0.3.0"
