// Package portal describes the schedule portal (its URLs, selectors and
// markers) and fetches per-event details from it over plain HTTP.
package portal

import (
	"github.com/colthorp/planning-cli-go/internal/core"
)

// Profile holds everything that is specific to one portal deployment.
// Every field may be overridden from the YAML config under "portal:".
type Profile struct {
	BaseURL     string `yaml:"base_url"`
	PlanningURL string `yaml:"planning_url"`
	// DetailURL is a fmt template receiving the event identifier.
	DetailURL    string `yaml:"detail_url"`
	CookieDomain string `yaml:"cookie_domain"`

	// Login form
	SSOButton     string `yaml:"sso_button"`
	UsernameInput string `yaml:"username_input"`
	PasswordInput string `yaml:"password_input"`
	SubmitButton  string `yaml:"submit_button"`
	// RejectionSelector matches the element carrying the portal's login error.
	RejectionSelector string `yaml:"rejection_selector"`
	// ConsentMarker appears on the attribute-release consent page.
	ConsentMarker string `yaml:"consent_marker"`
	ConsentAccept string `yaml:"consent_accept"`

	// Planning view
	PlanningSelector string `yaml:"planning_selector"`
	DateInput        string `yaml:"date_input"`
	DateSubmit       string `yaml:"date_submit"`
	// AuthMarker is text present only on pages served to a logged-in user.
	AuthMarker string `yaml:"auth_marker"`

	// Enrichment
	EventSelector  string   `yaml:"event_selector"`
	EventIDAttr    string   `yaml:"event_id_attr"`
	EventIDPattern string   `yaml:"event_id_pattern"`
	TeacherLabel   string   `yaml:"teacher_label"`
	RoomLabel      string   `yaml:"room_label"`
	NoiseSelectors []string `yaml:"noise_selectors"`
}

// DefaultProfile returns the profile of the IMT Atlantique PASS portal.
func DefaultProfile() Profile {
	return Profile{
		BaseURL:      core.PortalBaseURL,
		PlanningURL:  core.PortalPlanningURL,
		DetailURL:    core.PortalDetailURL,
		CookieDomain: core.PortalDomain,

		SSOButton:         "#remoteAuth button",
		UsernameInput:     "input#username",
		PasswordInput:     "input#password",
		SubmitButton:      "input.btn-submit",
		RejectionSelector: "#msg.errors",
		ConsentMarker:     "Information to be Provided to Service",
		ConsentAccept:     "input[type=submit][value=Accept]",

		PlanningSelector: `table[bgcolor="#F7F7F7"]`,
		DateInput:        `input[name="DateDeb"]`,
		DateSubmit:       `input[type=submit][name="Valider"]`,
		AuthMarker:       "Déconnexion",

		EventSelector:  `td[onclick*="NumEve"]`,
		EventIDAttr:    "onclick",
		EventIDPattern: `NumEve=(\d+)`,
		TeacherLabel:   "Intervenant",
		RoomLabel:      "Salle",
		NoiseSelectors: []string{"#bandeau", ".cookie-banner", "#footer"},
	}
}

// Merge returns p with every empty field filled from defaults.
func (p Profile) Merge(defaults Profile) Profile {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&p.BaseURL, defaults.BaseURL)
	fill(&p.PlanningURL, defaults.PlanningURL)
	fill(&p.DetailURL, defaults.DetailURL)
	fill(&p.CookieDomain, defaults.CookieDomain)
	fill(&p.SSOButton, defaults.SSOButton)
	fill(&p.UsernameInput, defaults.UsernameInput)
	fill(&p.PasswordInput, defaults.PasswordInput)
	fill(&p.SubmitButton, defaults.SubmitButton)
	fill(&p.RejectionSelector, defaults.RejectionSelector)
	fill(&p.ConsentMarker, defaults.ConsentMarker)
	fill(&p.ConsentAccept, defaults.ConsentAccept)
	fill(&p.PlanningSelector, defaults.PlanningSelector)
	fill(&p.DateInput, defaults.DateInput)
	fill(&p.DateSubmit, defaults.DateSubmit)
	fill(&p.AuthMarker, defaults.AuthMarker)
	fill(&p.EventSelector, defaults.EventSelector)
	fill(&p.EventIDAttr, defaults.EventIDAttr)
	fill(&p.EventIDPattern, defaults.EventIDPattern)
	fill(&p.TeacherLabel, defaults.TeacherLabel)
	fill(&p.RoomLabel, defaults.RoomLabel)
	if p.NoiseSelectors == nil {
		p.NoiseSelectors = append([]string(nil), defaults.NoiseSelectors...)
	}
	return p
}
