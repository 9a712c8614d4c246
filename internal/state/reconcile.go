package state

// Snapshot is the server's authoritative report of queue and active state,
// as returned by the status endpoint.
type Snapshot struct {
	Queue  []Download `json:"queue"`
	Active []Download `json:"active"`
}

// ApplySnapshot merges an authoritative server snapshot into the store.
//
// Rules, in order of precedence:
//   - tombstoned ids are filtered out of the snapshot entirely, so a report
//     that lags an optimistic removal cannot resurrect the entry;
//   - optimistic enqueues the server has not confirmed yet survive the merge;
//   - queue entries confirmed gone from the server are dropped, newly
//     reported ones are appended, and the local display order of surviving
//     entries is preserved (local order is authoritative for the session);
//   - active entries are replaced or added by id, except that an entry
//     already observed in a terminal state stays until AckTerminal so the UI
//     can render the final state exactly once.
//
// The whole merge runs under the lock with no suspension point, so no other
// handler can observe a partially applied snapshot.
func (s *Store) ApplySnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()

	// Queue merge.
	serverQueue := make(map[string]Download, len(snap.Queue))
	for _, d := range snap.Queue {
		if _, dead := s.tombstones[d.ID]; dead {
			continue
		}
		serverQueue[d.ID] = d
		delete(s.pendingAdds, d.ID)
	}

	order := make([]string, 0, len(serverQueue)+len(s.pendingAdds))
	kept := make(map[string]bool, len(serverQueue))
	for _, id := range s.queueOrder {
		sd, onServer := serverQueue[id]
		_, pending := s.pendingAdds[id]
		switch {
		case onServer:
			order = append(order, id)
			kept[id] = true
			s.queued[id] = mergeDetails(s.queued[id], sd)
		case pending:
			order = append(order, id)
			kept[id] = true
		default:
			delete(s.queued, id)
		}
	}
	for _, d := range snap.Queue {
		if _, dead := s.tombstones[d.ID]; dead {
			continue
		}
		if !kept[d.ID] {
			order = append(order, d.ID)
			kept[d.ID] = true
			s.queued[d.ID] = d
		}
	}
	s.queueOrder = order

	// Active merge.
	serverActive := make(map[string]Download, len(snap.Active))
	for _, d := range snap.Active {
		if _, dead := s.tombstones[d.ID]; dead {
			continue
		}
		serverActive[d.ID] = d
		delete(s.pendingAdds, d.ID)
	}

	for id, d := range serverActive {
		s.active[id] = mergeDetails(s.active[id], d)
		// An id promoted to active leaves the queue.
		if _, inQueue := s.queued[id]; inQueue {
			s.dropFromQueueLocked(id)
		}
	}
	for id, d := range s.active {
		if _, onServer := serverActive[id]; onServer {
			continue
		}
		if d.Status.Terminal() {
			continue // held until AckTerminal
		}
		if _, pending := s.pendingAdds[id]; pending {
			continue
		}
		delete(s.active, id)
	}
}

// mergeDetails overlays the server record on the local one, keeping local
// fields the server does not report.
func mergeDetails(local, server Download) Download {
	out := server
	if out.ID == "" {
		out.ID = local.ID
	}
	if out.URL == "" {
		out.URL = local.URL
	}
	if out.Filename == "" {
		out.Filename = local.Filename
	}
	if out.Title == "" {
		out.Title = local.Title
	}
	if out.Priority == 0 {
		out.Priority = local.Priority
	}
	if out.Size == 0 {
		out.Size = local.Size
	}
	return out
}
