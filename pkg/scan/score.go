package scan

// DefaultBaseline is the average number of source lines per `err != nil`
// check across the reference corpus.
const DefaultBaseline = 70.0

const percentScale = 100

// FrequencyScore compares match density with baseline lines per hit.
// A score of 100 means one hit per baseline lines. The second result is false
// when the score is undefined because there were no hits or no lines.
func FrequencyScore(sloc, hits int, baseline float64) (float64, bool) {
	if hits == 0 || sloc == 0 {
		return 0, false
	}

	linesPerHit := float64(sloc) / float64(hits)

	return percentScale * baseline / linesPerHit, true
}

// percent returns round(done/total*100), or 0 when total is 0.
func percent(done, total int) int {
	if total == 0 {
		return 0
	}

	return (done*percentScale*2 + total) / (total * 2)
}
