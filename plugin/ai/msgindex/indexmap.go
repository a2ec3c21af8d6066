package msgindex

// IndexedEntry pairs a log entry with both of its positions.
type IndexedEntry struct {
	GlobalIndex int    `json:"globalIndex"`
	RoleIndex   int    `json:"roleIndex"`
	Timestamp   int64  `json:"timestamp"`
	Text        string `json:"text"`
}

// IndexMap lists the counted entries of each role in log order.
type IndexMap struct {
	UserMessages []IndexedEntry `json:"userMessages"`
	AIMessages   []IndexedEntry `json:"aiMessages"`
}

// BuildIndexMap computes the role-index of every counted entry of log.
func BuildIndexMap(log []LogEntry) *IndexMap {
	m := &IndexMap{
		UserMessages: []IndexedEntry{},
		AIMessages:   []IndexedEntry{},
	}
	for _, pos := range roleEntries(log, RoleUser) {
		m.UserMessages = append(m.UserMessages, indexed(log, pos, len(m.UserMessages)+1))
	}
	for _, pos := range roleEntries(log, RoleModel) {
		m.AIMessages = append(m.AIMessages, indexed(log, pos, len(m.AIMessages)+1))
	}
	return m
}

func indexed(log []LogEntry, pos, roleIndex int) IndexedEntry {
	return IndexedEntry{
		GlobalIndex: pos,
		RoleIndex:   roleIndex,
		Timestamp:   log[pos].TimestampMs,
		Text:        log[pos].Text,
	}
}
