package triage

// Phrase tiers, all lower-case. Order inside a tier decides which phrase is reported.
var criticalPhrases = []string{
	// neurological
	"stroke",
	"brain stroke",
	"paralysis",
	"left side weakness",
	"right side weakness",
	"vision loss",
	"slurred speech",
	"sudden numbness",
	"face drooping",
	"arm weakness",
	"seizure",
	"fits",
	"convulsion",
	"unconscious",
	"unresponsive",
	// cardiac
	"heart attack",
	"chest pain",
	"chest tightness",
	"crushing chest pain",
	"cardiac arrest",
	// respiratory
	"breathing difficulty",
	"can't breathe",
	"cannot breathe",
	"shortness of breath",
	"severe breathing",
	"choking",
	// other
	"suicide",
	"harm myself",
	"abuse",
	"severe bleeding",
	"head injury",
	"loss of consciousness",
}

var highPhrases = []string{
	"severe pain",
	"high fever",
	"fainting",
	"dizziness",
	"blurred vision",
	"numbness",
	"weakness",
	"difficulty walking",
	"confusion",
	"memory loss",
}

var moderatePhrases = []string{
	"pain",
	"fever",
	"headache",
	"migraine",
	"vomiting",
	"nausea",
	"diarrhea",
	"infection",
	"rash",
	"cough",
}
