package inheritance

// ParentChain maps an inherited scenario id to the root scenario it was
// ultimately derived from during one propagation.
type ParentChain map[string]string

// Link records id as a descendant of parentID, resolved to parentID's root.
func (pc ParentChain) Link(id, parentID string) {
	for hops := 0; hops <= len(pc); hops++ {
		next, ok := pc[parentID]
		if !ok || next == parentID {
			break
		}
		parentID = next
	}
	pc[id] = parentID
}

// Root returns the root recorded for id, or id itself when none was recorded.
func (pc ParentChain) Root(id string) string {
	if root, ok := pc[id]; ok {
		return root
	}
	return id
}
