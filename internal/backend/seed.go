package backend

import (
	"context"
	"fmt"

	"github.com/classroll/attendance/internal/auth"
	"github.com/classroll/attendance/internal/model"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "classroll"

// Demo describes what SeedDemo created.
type Demo struct {
	Teacher  User
	Admin    User
	Course   model.Course
	Schedule model.ClassSchedule
	Students []model.RosterEntry
	// EmptyCourse has no enrollments.
	EmptyCourse model.Course
}

// SeedDemo creates a teacher, an admin, a course with three enrolled
// students and a weekly schedule, and a course nobody is enrolled in.
func SeedDemo(ctx context.Context, s Seeder) (Demo, error) {
	hash, err := HashPassword(DemoPassword)
	if err != nil {
		return Demo{}, err
	}
	var d Demo
	if d.Admin, err = s.AddUser(ctx, User{Username: "admin", Name: "Registrar", Role: auth.RoleAdmin, PasswordHash: hash}); err != nil {
		return Demo{}, fmt.Errorf("seed admin: %w", err)
	}
	if d.Teacher, err = s.AddUser(ctx, User{Username: "teacher", Name: "Maria Santos", Role: auth.RoleTeacher, PasswordHash: hash}); err != nil {
		return Demo{}, fmt.Errorf("seed teacher: %w", err)
	}
	if d.Course, err = s.AddCourse(ctx, model.Course{Code: "IT 101", Name: "Introduction to Computing", Units: 3, Type: "LECTURE"}); err != nil {
		return Demo{}, fmt.Errorf("seed course: %w", err)
	}
	if d.EmptyCourse, err = s.AddCourse(ctx, model.Course{Code: "IT 199", Name: "Capstone Seminar", Units: 1, Type: "LECTURE"}); err != nil {
		return Demo{}, fmt.Errorf("seed course: %w", err)
	}
	if d.Schedule, err = s.AddSchedule(ctx, d.Course.ID, model.ClassSchedule{DayOfWeek: "FRIDAY", StartTime: "08:00", EndTime: "10:00", ClassroomID: 204}); err != nil {
		return Demo{}, fmt.Errorf("seed schedule: %w", err)
	}
	for _, st := range []model.RosterEntry{
		{Name: "Ana Cruz", Program: "BSIT", YearLevel: 1, Section: "A"},
		{Name: "Ben Reyes", Program: "BSIT", YearLevel: 1, Section: "A"},
		{Name: "Cara Lim", Program: "BSIT", YearLevel: 1, Section: "A"},
	} {
		added, err := s.AddStudent(ctx, d.Course.ID, st)
		if err != nil {
			return Demo{}, fmt.Errorf("seed student: %w", err)
		}
		d.Students = append(d.Students, added)
	}
	return d, nil
}
