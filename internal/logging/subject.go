package logging

import "strings"

// FormatSubject builds the lane/split/stage subject string used in console output.
func FormatSubject(lane, splitID, stage string) string {
	lane = strings.TrimSpace(lane)
	splitID = strings.TrimSpace(splitID)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 3)
	if lane != "" {
		var formattedLane string
		if len(lane) > 1 {
			formattedLane = strings.ToUpper(lane[:1]) + strings.ToLower(lane[1:])
		} else {
			formattedLane = strings.ToUpper(lane)
		}
		parts = append(parts, formattedLane)
	}
	switch {
	case splitID != "" && stage != "":
		parts = append(parts, "Split "+splitID+" ("+stage+")")
	case splitID != "":
		parts = append(parts, "Split "+splitID)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
