package domain

// HabitProgressCap keeps habit automation from completing a goal on its own.
// The last points need a manual report or an explicit completion.
const HabitProgressCap = 90.0

var Milestones = []int{25, 50, 75}

type Progress struct {
	GoalID       string  `json:"goal_id"`
	Percent      float64 `json:"percent"`
	HabitBased   float64 `json:"habit_based"`
	ManualOffset float64 `json:"manual_offset"`
	IsComplete   bool    `json:"is_complete"`
}

type ProgressChange struct {
	GoalID     string   `json:"goal_id"`
	Before     Progress `json:"before"`
	After      Progress `json:"after"`
	Milestones []int    `json:"milestones_crossed"`
}

func NewProgressChange(before, after Progress) ProgressChange {
	return ProgressChange{
		GoalID:     after.GoalID,
		Before:     before,
		After:      after,
		Milestones: CrossedMilestones(before.Percent, after.Percent),
	}
}

// HabitBasedProgress averages the linked habits' fractions and caps the result.
func HabitBasedProgress(instances []*HabitInstance) float64 {
	if len(instances) == 0 {
		return 0
	}

	var sum float64
	for _, inst := range instances {
		sum += inst.Fraction()
	}

	avg := sum / float64(len(instances))
	if avg > HabitProgressCap {
		return HabitProgressCap
	}
	return avg
}

func ComputeProgress(goal *GoalInstance, instances []*HabitInstance) Progress {
	habitBased := HabitBasedProgress(instances)
	p := Progress{
		GoalID:       goal.ID,
		HabitBased:   habitBased,
		ManualOffset: goal.ManualOffset,
		Percent:      clamp(habitBased+goal.ManualOffset, 0, 100),
	}

	if goal.Status == GoalStatusCompleted {
		p.Percent = 100
	}
	p.IsComplete = p.Percent >= 100
	return p
}

// ContinuityOffset is the manual offset that keeps the combined percentage at
// before once the habit-based component becomes afterHabitBased.
func ContinuityOffset(before, afterHabitBased float64) float64 {
	return clamp(before-afterHabitBased, 0, 100)
}

// CrossedMilestones lists the milestones passed going from one percentage to another.
func CrossedMilestones(from, to float64) []int {
	var crossed []int
	for _, m := range Milestones {
		if from < float64(m) && to >= float64(m) {
			crossed = append(crossed, m)
		}
	}
	return crossed
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
