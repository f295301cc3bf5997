// Package inmemdb implements the core repositories in memory, for tests & demos.
package inmemdb

import (
	"sync"

	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/submission"
	"github.com/trezcool/psms/core/user"
)

type (
	// row keeps the insertion order, used as a tie breaker when sorting.
	row struct {
		seq int
	}

	userRow struct {
		row
		user.User
	}
	projectRow struct {
		row
		project.Project
	}
	submissionRow struct {
		row
		submission.Submission
	}
	feedbackRow struct {
		row
		feedback.Feedback
	}
	notificationRow struct {
		row
		notification.Notification
	}

	// DB is shared by all repositories so that deletes can cascade like foreign keys.
	DB struct {
		mu            sync.RWMutex
		seq           int
		users         map[string]*userRow
		projects      map[string]*projectRow
		submissions   map[string]*submissionRow
		feedback      map[string]*feedbackRow
		notifications map[string]*notificationRow
	}
)

func Open() *DB {
	return &DB{
		users:         make(map[string]*userRow),
		projects:      make(map[string]*projectRow),
		submissions:   make(map[string]*submissionRow),
		feedback:      make(map[string]*feedbackRow),
		notifications: make(map[string]*notificationRow),
	}
}

// nextRow must be called with mu held.
func (db *DB) nextRow() row {
	db.seq++
	return row{seq: db.seq}
}

func copyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}
