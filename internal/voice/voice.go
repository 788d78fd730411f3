// Package voice maps interview personas to a synthesized voice identity
// and builds the session system instruction.
package voice

import (
	"fmt"
	"strings"
)

// Identity names a prebuilt voice on the live service.
type Identity string

const (
	// IdentityTechnical is used for technical and formal interviewer styles.
	IdentityTechnical Identity = "Charon"
	// IdentityWarm is the default conversational voice.
	IdentityWarm Identity = "Aoede"
)

// Style is the normalized interviewer style preference.
type Style string

const (
	StyleTechnical      Style = "technical"
	StyleFormal         Style = "formal"
	StyleConversational Style = "conversational"
	StyleFriendly       Style = "friendly"
)

// ParseStyle normalizes a free-form style preference into one of the
// enumerated styles. Unknown preferences map to StyleConversational.
func ParseStyle(preference string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(preference))) {
	case StyleTechnical:
		return StyleTechnical
	case StyleFormal:
		return StyleFormal
	case StyleFriendly:
		return StyleFriendly
	default:
		return StyleConversational
	}
}

// For selects the voice identity for a style preference. Technical and
// formal interviews use IdentityTechnical; everything else defaults to
// IdentityWarm.
func For(preference string) Identity {
	switch ParseStyle(preference) {
	case StyleTechnical, StyleFormal:
		return IdentityTechnical
	default:
		return IdentityWarm
	}
}

// Persona describes the interviewer the remote model should play.
type Persona struct {
	Name       string
	Role       string
	Style      string
	Background string
}

// maxJobDescriptionChars bounds the job description carried into the
// system instruction so the setup payload stays small.
const maxJobDescriptionChars = 2000

// SystemInstruction builds the session instruction from the job posting and
// persona. The job description is truncated, not summarized.
func SystemInstruction(jobTitle, jobDescription string, p Persona) string {
	jobTitle = strings.TrimSpace(jobTitle)
	jobDescription = strings.TrimSpace(jobDescription)
	if len(jobDescription) > maxJobDescriptionChars {
		jobDescription = jobDescription[:maxJobDescriptionChars]
	}

	var b strings.Builder
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "the interviewer"
	}
	fmt.Fprintf(&b, "You are %s, conducting a mock job interview", name)
	if role := strings.TrimSpace(p.Role); role != "" {
		fmt.Fprintf(&b, " as %s", role)
	}
	if jobTitle != "" {
		fmt.Fprintf(&b, " for the position of %s", jobTitle)
	}
	b.WriteString(".")
	if style := ParseStyle(p.Style); style != "" {
		fmt.Fprintf(&b, " Keep a %s interviewing style.", style)
	}
	if background := strings.TrimSpace(p.Background); background != "" {
		fmt.Fprintf(&b, " Your background: %s.", background)
	}
	if jobDescription != "" {
		fmt.Fprintf(&b, "\n\nJob description:\n%s", jobDescription)
	}
	b.WriteString("\n\nAsk one question at a time, listen to the candidate's spoken answers, and follow up naturally.")
	return b.String()
}
