package session

// IdentityMap keeps one instance per stored document within a session.
// Keys are the table of the hierarchy root and the normalized id, so
// subclasses of one hierarchy share entries.
//
// Not safe for concurrent use; a session owns its map.
type IdentityMap struct {
	docs map[identityKey]any
}

type identityKey struct {
	table string
	id    any
}

// NewIdentityMap creates an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{docs: make(map[identityKey]any)}
}

// Lookup returns the tracked instance of a document.
func (m *IdentityMap) Lookup(table string, id any) (any, bool) {
	doc, ok := m.docs[identityKey{table, id}]
	return doc, ok
}

// Register tracks doc, replacing any earlier instance.
func (m *IdentityMap) Register(table string, id any, doc any) {
	m.docs[identityKey{table, id}] = doc
}

// Remove stops tracking a document.
func (m *IdentityMap) Remove(table string, id any) {
	delete(m.docs, identityKey{table, id})
}

// Len reports the number of tracked documents.
func (m *IdentityMap) Len() int { return len(m.docs) }

// Clear drops every tracked document.
func (m *IdentityMap) Clear() {
	clear(m.docs)
}
