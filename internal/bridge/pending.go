package bridge

import "sync"

// pendingTable holds the response slots for in-flight SendAndWait calls,
// keyed by correlation ID.
type pendingTable struct {
	mu    sync.Mutex
	slots map[string]chan *Message
}

func newPendingTable() *pendingTable {
	return &pendingTable{slots: make(map[string]chan *Message)}
}

// register creates a slot for the given correlation ID.
func (p *pendingTable) register(id string) chan *Message {
	ch := make(chan *Message, 1)
	p.mu.Lock()
	p.slots[id] = ch
	p.mu.Unlock()
	return ch
}

// resolve delivers a response to its slot. It returns false when no slot is
// waiting, in which case the message is unsolicited.
func (p *pendingTable) resolve(msg *Message) bool {
	p.mu.Lock()
	ch, ok := p.slots[msg.ID]
	if ok {
		delete(p.slots, msg.ID)
	}
	p.mu.Unlock()
	if ok {
		ch <- msg
	}
	return ok
}

// remove drops a slot without resolving it, for timed-out waits.
func (p *pendingTable) remove(id string) {
	p.mu.Lock()
	delete(p.slots, id)
	p.mu.Unlock()
}

// contains reports whether a slot is still registered.
func (p *pendingTable) contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.slots[id]
	return ok
}
