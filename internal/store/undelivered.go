package store

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Message is one queued chat message.
type Message struct {
	Sender string
	Body   string
}

// UndeliveredStore holds, per recipient, the FIFO queue of messages waiting
// for the recipient to be reachable. The log holds one
// "recipient sender message" line per queued message; the message is the
// final field and may contain spaces.
//
// Recipients keep their slot in iteration order even after their queue
// drains, so delivery order across pump rounds stays stable.
type UndeliveredStore struct {
	sync.Mutex

	path   string
	order  []string
	queues map[string][]Message
}

// OpenUndeliveredStore loads (or creates) the undelivered-message log for
// the given replica id under dir.
func OpenUndeliveredStore(dir string, id int) (*UndeliveredStore, error) {
	s := &UndeliveredStore{
		path:   filepath.Join(dir, fmt.Sprintf("undelivered_messages_%d.log", id)),
		queues: make(map[string][]Message),
	}
	lines, err := readLines(s.path)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		recipient, sender, body := splitRecord(line)
		if recipient == "" {
			continue
		}
		s.put(recipient, Message{Sender: sender, Body: body})
	}
	return s, nil
}

// splitRecord splits "recipient sender message". A line with only two
// fields is an empty message body, not corruption.
func splitRecord(line string) (recipient, sender, body string) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", "", ""
	}
	recipient, sender = parts[0], parts[1]
	if len(parts) == 3 {
		body = parts[2]
	}
	return recipient, sender, body
}

func (s *UndeliveredStore) put(recipient string, m Message) {
	if _, ok := s.queues[recipient]; !ok {
		s.order = append(s.order, recipient)
	}
	s.queues[recipient] = append(s.queues[recipient], m)
}

// Add appends one message to the recipient's queue.
func (s *UndeliveredStore) Add(recipient, sender, body string) error {
	if err := appendLine(s.path, recipient+" "+sender+" "+body); err != nil {
		return err
	}
	s.put(recipient, Message{Sender: sender, Body: body})
	return nil
}

// Replace swaps the recipient's entire queue for msgs and rewrites the log.
// An empty msgs empties the queue but keeps the recipient's slot in
// iteration order. Other recipients' records keep their relative order.
func (s *UndeliveredStore) Replace(recipient string, msgs []Message) error {
	if _, ok := s.queues[recipient]; !ok {
		s.order = append(s.order, recipient)
	}

	var lines []string
	for _, r := range s.order {
		queue := s.queues[r]
		if r == recipient {
			queue = msgs
		}
		for _, m := range queue {
			lines = append(lines, r+" "+m.Sender+" "+m.Body)
		}
	}
	if err := rewrite(s.path, lines); err != nil {
		return err
	}
	s.queues[recipient] = msgs
	return nil
}

// Recipients returns every recipient that has ever had a queue, in first-
// message order.
func (s *UndeliveredStore) Recipients() []string {
	return slices.Clone(s.order)
}

// QueueFor returns a copy of the recipient's pending queue, oldest first.
func (s *UndeliveredStore) QueueFor(recipient string) []Message {
	return slices.Clone(s.queues[recipient])
}

// Clear wipes the store, memory and log both.
func (s *UndeliveredStore) Clear() error {
	if err := rewrite(s.path, nil); err != nil {
		return err
	}
	s.order = nil
	s.queues = make(map[string][]Message)
	return nil
}
