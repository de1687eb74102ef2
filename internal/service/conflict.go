package service

import "sugang/internal/model"

// findConflict returns the first committed course other than target that has
// the same name or the same time slot. Time slots match on exact text.
func findConflict(target *model.Course, committed []model.Course) *model.Course {
	for i := range committed {
		c := &committed[i]
		if c.ID == target.ID || !c.Status.Committed() {
			continue
		}
		if c.CourseName == target.CourseName || c.TimeInfo == target.TimeInfo {
			return c
		}
	}
	return nil
}
