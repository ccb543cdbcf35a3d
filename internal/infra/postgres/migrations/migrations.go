package migrations

import (
	_ "embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_attendance.sql
var createAttendanceSQL string

//go:embed 0002_create_questions.sql
var createQuestionsSQL string

var Migrations = migrate.NewMigrations()
