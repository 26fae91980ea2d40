package crisis

import (
	"encoding/json"
	"strings"
)

// EmergencyType classifies a detected emergency.
type EmergencyType int

const (
	EmergencyNone EmergencyType = iota
	EmergencyFire
	EmergencyMedical
	EmergencyDanger
	EmergencyGeneral
)

// String returns the string representation of the emergency type.
func (t EmergencyType) String() string {
	switch t {
	case EmergencyFire:
		return "fire"
	case EmergencyMedical:
		return "medical"
	case EmergencyDanger:
		return "danger"
	case EmergencyGeneral:
		return "general"
	default:
		return "none"
	}
}

// MarshalJSON implements json.Marshaler.
func (t EmergencyType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *EmergencyType) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "fire":
		*t = EmergencyFire
	case "medical":
		*t = EmergencyMedical
	case "danger":
		*t = EmergencyDanger
	case "general":
		*t = EmergencyGeneral
	default:
		*t = EmergencyNone
	}
	return nil
}

// Keyword categories checked in order. First category with a match wins,
// so "fire" in "there's a fire, help" classifies as fire, not danger.
var (
	fireKeywords = []string{
		"fire", "burning", "smoke", "flame", "blaze",
	}
	medicalKeywords = []string{
		"heart", "chest pain", "cardiac", "breathing", "choking", "asthma",
		"injury", "hurt", "bleeding", "broken", "fracture", "unconscious",
		"not breathing", "medical emergency",
	}
	dangerKeywords = []string{
		"danger", "threat", "someone behind", "following", "attack",
		"intruder", "unsafe", "scared", "fear", "help", "emergency",
		"crisis",
	}
	generalKeywords = []string{
		"accident", "crash", "collision", "car", "vehicle", "emergency",
		"help",
	}
)

// affirmations is the vocabulary accepted as a positive confirmation.
// Matching is a permissive case-insensitive substring scan, not intent
// classification.
var affirmations = []string{
	"yes", "yeah", "yep", "sure", "okay", "ok", "correct", "right",
	"true", "confirmed",
}

// DetectEmergency reports whether text contains emergency content and, if
// so, which category. Categories are checked fire, medical, danger,
// general; the first match wins.
func DetectEmergency(text string) (bool, EmergencyType) {
	lower := strings.ToLower(text)
	for _, groups := range []struct {
		typ      EmergencyType
		keywords []string
	}{
		{EmergencyFire, fireKeywords},
		{EmergencyMedical, medicalKeywords},
		{EmergencyDanger, dangerKeywords},
		{EmergencyGeneral, generalKeywords},
	} {
		for _, kw := range groups.keywords {
			if strings.Contains(lower, kw) {
				return true, groups.typ
			}
		}
	}
	return false, EmergencyNone
}

// IsPositiveConfirmation reports whether text reads as an affirmative
// reply to a pending protocol question.
func IsPositiveConfirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range affirmations {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
