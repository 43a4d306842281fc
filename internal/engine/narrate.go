package engine

// Narration is the one-line status a frontend can show verbatim while
// a run progresses. Error lines are picked at random so repeated
// failures do not read like a stuck screen.

var phaseLines = map[Phase][]string{
	PhaseIdle: {
		"Ready when you are.",
	},
	PhaseAuthenticating: {
		"Trading credentials for a token...",
		"Knocking on the token endpoint...",
		"Getting a fresh token first...",
	},
	PhaseAuthorizing: {
		"Waiting for you in the browser...",
		"Holding until the provider waves us through...",
		"Over to the sign-in page now...",
	},
	PhaseFetching: {
		"Request is on the wire...",
		"Talking to the server...",
		"Out the door, waiting for a reply...",
	},
}

var sadLines = []string{
	"Well, that went sideways.",
	"The wire has opinions today.",
	"No reply worth keeping came back.",
	"That one never made it home.",
	"Somewhere out there, a packet is very lost.",
	"The server and us are not on speaking terms.",
}

func (e *Engine) narrate(phase Phase) string {
	lines := phaseLines[phase]
	if len(lines) == 0 {
		return ""
	}
	return lines[e.randIntN(len(lines))]
}

func (e *Engine) sadLine() string {
	return sadLines[e.randIntN(len(sadLines))]
}
