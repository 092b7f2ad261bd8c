package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatements(t *testing.T) {
	without := strings.Join(Statements(false), "\n")
	assert.Contains(t, without, `CREATE TABLE IF NOT EXISTS "events"`)
	assert.Contains(t, without, "registrations_user_event_key UNIQUE (user_id, event_id)")
	assert.Contains(t, without, "events_slots_check")
	assert.NotContains(t, without, `"config"`)

	with := Statements(true)
	assert.Len(t, with, len(Statements(false))+1)
	assert.Contains(t, strings.Join(with, "\n"), `CREATE TABLE IF NOT EXISTS "config"`)
}

func TestStatements_EventsBeforeRegistrations(t *testing.T) {
	stmts := Statements(false)
	events, regs := -1, -1
	for i, s := range stmts {
		if strings.Contains(s, `EXISTS "events"`) {
			events = i
		}
		if strings.Contains(s, "EXISTS registrations") {
			regs = i
		}
	}
	assert.GreaterOrEqual(t, events, 0)
	assert.Greater(t, regs, events)
}
