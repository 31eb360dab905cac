package task

import "strings"

// shortReplyTokens is the largest message (in whitespace tokens) that can
// continue the previous task when it carries no keywords of its own.
const shortReplyTokens = 3

// Classify returns the task type of message. Each type scores the number of
// its keywords found as substrings of the lower-cased message; a strict
// maximum wins and ties or zero scores yield GeneralQuestion.
//
// A short keyword-free reply ("כן", "ok, go on") inherits prior when prior is set.
func Classify(message string, prior Type) Type {
	scores := Scores(message)

	total := 0
	for _, s := range scores {
		total += s
	}
	if total == 0 && prior != "" && len(strings.Fields(message)) <= shortReplyTokens {
		return prior
	}

	best, bestScore, tied := GeneralQuestion, 0, false
	for _, t := range All {
		s := scores[t]
		switch {
		case s > bestScore:
			best, bestScore, tied = t, s, false
		case s == bestScore && s > 0:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return GeneralQuestion
	}
	return best
}

// Scores returns the keyword hit count per task type. Types with no hits are omitted.
func Scores(message string) map[Type]int {
	lower := strings.ToLower(message)
	scores := make(map[Type]int)
	for t, kws := range keywords {
		n := 0
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				n++
			}
		}
		if n > 0 {
			scores[t] = n
		}
	}
	return scores
}
