package resolver

import "regexp"

// Word characters are Unicode letters, marks and digits; RE2's \w is ASCII only and
// would miss Hangul file names.
var (
	paNumberPattern = regexp.MustCompile(`PA\d+`)
	filenamePattern = regexp.MustCompile(`([\p{L}\p{M}\p{N}_\-]+\.pdf)`)
	apiIDPattern    = regexp.MustCompile(`API ID: ([\p{L}\p{M}\p{N}_]+)`)
)

// Keys are the identifiers found in a message. Any of them may be empty.
type Keys struct {
	PANumber string `json:"pa_number,omitempty"`
	Filename string `json:"filename,omitempty"`
	APIID    string `json:"api_id,omitempty"`
}

// Empty reports whether no identifier was found.
func (k Keys) Empty() bool {
	return k.PANumber == "" && k.Filename == "" && k.APIID == ""
}

// ExtractKeys runs the three patterns independently; the first match of each wins.
func ExtractKeys(text string) Keys {
	return Keys{
		PANumber: paNumberPattern.FindString(text),
		Filename: filenamePattern.FindString(text),
		APIID:    extractAPIID(text),
	}
}

func extractAPIID(text string) string {
	if m := apiIDPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
