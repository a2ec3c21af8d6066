package msgindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseTs = int64(1_700_000_000_000)

// alternatingLog builds a first_mes model line followed by alternating
// user/model entries, one minute apart.
func alternatingLog(total int) []LogEntry {
	log := make([]LogEntry, 0, total)
	for i := 0; i < total; i++ {
		entry := LogEntry{
			TimestampMs: testBaseTs + int64(i)*60_000,
			GlobalIndex: i,
		}
		switch {
		case i == 0:
			entry.Role = RoleModel
			entry.IsFirstMes = true
			entry.Text = "Greetings, traveller. The tavern is warm tonight."
		case i%2 == 1:
			entry.Role = RoleUser
			entry.Text = fmt.Sprintf("User message #%d", i)
		default:
			entry.Role = RoleModel
			entry.Text = fmt.Sprintf("Model reply #%d", i)
		}
		log = append(log, entry)
	}
	return log
}

func TestRoleIndexOf(t *testing.T) {
	log := alternatingLog(9)

	t.Run("FirstMesExcluded", func(t *testing.T) {
		assert.Equal(t, NotFound, RoleIndexOf(log, 0, RoleModel))
	})

	t.Run("WrongRole", func(t *testing.T) {
		assert.Equal(t, NotFound, RoleIndexOf(log, 1, RoleModel))
		assert.Equal(t, NotFound, RoleIndexOf(log, 2, RoleUser))
	})

	t.Run("OutOfRange", func(t *testing.T) {
		assert.Equal(t, NotFound, RoleIndexOf(log, -1, RoleUser))
		assert.Equal(t, NotFound, RoleIndexOf(log, len(log), RoleUser))
	})

	t.Run("Counts", func(t *testing.T) {
		assert.Equal(t, 1, RoleIndexOf(log, 1, RoleUser))
		assert.Equal(t, 2, RoleIndexOf(log, 3, RoleUser))
		assert.Equal(t, 1, RoleIndexOf(log, 2, RoleModel))
		assert.Equal(t, 4, RoleIndexOf(log, 8, RoleModel))
	})

	t.Run("AssistantIsModel", func(t *testing.T) {
		mixed := []LogEntry{
			{Role: RoleModel, IsFirstMes: true},
			{Role: RoleUser},
			{Role: RoleAssistant},
			{Role: RoleUser},
			{Role: RoleModel},
		}
		assert.Equal(t, 1, RoleIndexOf(mixed, 2, RoleModel))
		assert.Equal(t, 2, RoleIndexOf(mixed, 4, RoleModel))
		assert.Equal(t, 2, RoleIndexOf(mixed, 4, RoleAssistant))
	})
}

func TestRoleIndexStrictlyIncreasing(t *testing.T) {
	log := alternatingLog(61)
	log = append(log, LogEntry{Role: RoleAssistant, Text: "late", GlobalIndex: len(log)})

	for _, role := range []Role{RoleUser, RoleModel} {
		last := 0
		for i, entry := range log {
			if !role.Matches(entry.Role) || entry.IsFirstMes {
				continue
			}
			idx := RoleIndexOf(log, i, role)
			require.Greater(t, idx, last, "role %s at %d", role, i)
			last = idx
		}
	}
}

func TestGlobalIndexOf(t *testing.T) {
	log := alternatingLog(11)
	for i := range log {
		for _, role := range []Role{RoleUser, RoleModel} {
			idx := RoleIndexOf(log, i, role)
			if idx == NotFound {
				continue
			}
			assert.Equal(t, i, GlobalIndexOf(log, idx, role))
		}
	}
	assert.Equal(t, NotFound, GlobalIndexOf(log, 0, RoleUser))
	assert.Equal(t, NotFound, GlobalIndexOf(log, 6, RoleUser))
}

func TestCountPreceding(t *testing.T) {
	log := alternatingLog(7)
	assert.Equal(t, 0, CountPreceding(log, 2, RoleModel))
	assert.Equal(t, 1, CountPreceding(log, 4, RoleModel))
	assert.Equal(t, 3, CountPreceding(log, 7, RoleUser))
	assert.Equal(t, 3, CountPreceding(log, 100, RoleUser))
}
