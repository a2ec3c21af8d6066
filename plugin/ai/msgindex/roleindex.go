package msgindex

// counted reports whether entry takes part in role-index numbering for role.
func counted(entry LogEntry, role Role) bool {
	return role.Matches(entry.Role) && !entry.IsFirstMes
}

// RoleIndexOf returns the 1-based position of log[target] among the entries
// of role, first_mes excluded. It returns NotFound when the entry is of
// another role, is the opening line, or target is out of range.
//
// It must be called with the full log, never with a client page.
func RoleIndexOf(log []LogEntry, target int, role Role) int {
	if target < 0 || target >= len(log) {
		return NotFound
	}

	n := 0
	for i := 0; i <= target; i++ {
		if !counted(log[i], role) {
			continue
		}
		n++
		if i == target {
			return n
		}
	}
	return NotFound
}

// CountPreceding returns how many entries of role (first_mes excluded)
// appear strictly before target.
func CountPreceding(log []LogEntry, target int, role Role) int {
	if target > len(log) {
		target = len(log)
	}
	n := 0
	for i := 0; i < target; i++ {
		if counted(log[i], role) {
			n++
		}
	}
	return n
}

// GlobalIndexOf is the inverse of RoleIndexOf: it returns the log position
// of the roleIndex-th entry of role, or NotFound.
func GlobalIndexOf(log []LogEntry, roleIndex int, role Role) int {
	if roleIndex < 1 {
		return NotFound
	}
	n := 0
	for i, entry := range log {
		if !counted(entry, role) {
			continue
		}
		n++
		if n == roleIndex {
			return i
		}
	}
	return NotFound
}

// roleEntries returns the log positions of every counted entry of role.
func roleEntries(log []LogEntry, role Role) []int {
	positions := make([]int, 0, len(log))
	for i, entry := range log {
		if counted(entry, role) {
			positions = append(positions, i)
		}
	}
	return positions
}
