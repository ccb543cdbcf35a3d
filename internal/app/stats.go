package app

import "checkin-sync-service/internal/domain"

// Aggregate derives per-answer counts and response rate from a session
// snapshot. Pure function: no state, no side effects. Answers that are not
// part of the current question (the question changed mid-session) are counted
// under the "other" bucket rather than dropped.
func Aggregate(state domain.SessionState, totalStudents int, answers []string) domain.Stats {
	valid := make(map[string]struct{}, len(answers))
	for _, answer := range answers {
		valid[answer] = struct{}{}
	}

	counts := make(map[string]int, len(answers)+1)
	for _, entry := range state.Assignments {
		if _, ok := valid[entry.Answer]; ok {
			counts[entry.Answer]++
		} else {
			counts[domain.OtherAnswerBucket]++
		}
	}

	return domain.Stats{
		TotalStudents:   totalStudents,
		Responded:       len(state.Assignments),
		PerAnswerCounts: counts,
	}
}
