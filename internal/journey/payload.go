package journey

import "github.com/tidwall/gjson"

// playPostFields carries the values that vary across a single play-post
// iteration; everything else in the payload is fixed.
type playPostFields struct {
	LoadToken       string
	Series          string
	PuzzleID        string
	PlayID          string
	UserID          string
	PlayState       int
	Score           int
	TimeOnPage      int
	TimeTaken       int
	Timestamp       int64
	PrimaryState    string
	SecondaryState  string
	PostScoreReason string
}

// newPlayPostPayload builds the /api/v1/plays request body. The field set
// and fixed values (all counters zero, updatePlayTable true, etc.) mirror
// what a real browser client sends on every progress checkpoint.
func newPlayPostPayload(f playPostFields) map[string]any {
	payload := map[string]any{
		"browser":                browserUA,
		"fromPicker":             "date-picker",
		"getProgressFromBackend": true,
		"id":                     f.PuzzleID,
		"inContestMode":          false,
		"loadToken":              f.LoadToken,
		"nClearClicks":           0,
		"nExceptions":            0,
		"nHelpClicks":            0,
		"nPrints":                0,
		"nPrintsEmpty":           0,
		"nPrintsFilled":          0,
		"nPrintsSol":             0,
		"nResizes":               0,
		"nSettingsClicks":        0,
		"playId":                 f.PlayID,
		"playState":              f.PlayState,
		"postScoreReason":        f.PostScoreReason,
		"score":                  f.Score,
		"series":                 f.Series,
		"streakLength":           0,
		"timeOnPage":             f.TimeOnPage,
		"timeTaken":              f.TimeTaken,
		"timestamp":              f.Timestamp,
		"updateLoadTable":        false,
		"updatePlayTable":        true,
		"updatedTimestamp":       f.Timestamp,
		"userId":                 f.UserID,
	}
	if f.PrimaryState != "" {
		payload["primaryState"] = f.PrimaryState
	}
	if f.SecondaryState != "" {
		payload["secondaryState"] = f.SecondaryState
	}
	return payload
}

// gjsonGetInt reads an integer field out of a raw JSON response body,
// returning -1 if the body isn't parseable JSON or lacks the field.
func gjsonGetInt(body []byte, field string) int {
	result := gjson.GetBytes(body, field)
	if !result.Exists() {
		return -1
	}
	return int(result.Int())
}
