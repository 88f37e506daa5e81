package realtime

// ActiveSessions counts sessions that finished joining.
func (svc *Service) ActiveSessions() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	n := 0
	for _, s := range svc.sessions {
		if s.State() == StateActive {
			n++
		}
	}
	return n
}

// OriginAllowed exposes the upgrade origin check.
var OriginAllowed = originChecker

// Readers reports how many Subscribe references the user's mailbox holds.
func (r *Registry) Readers(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mb, ok := r.mailboxes[userID]; ok {
		return mb.refs
	}
	return 0
}
