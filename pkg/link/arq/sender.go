package arq

import "time"

// Record is an outstanding frame kept for retransmission.
type Record struct {
	Seq     Seq
	Payload []byte
	// SentAt is the time of the latest transmission, zero if never sent.
	SentAt time.Time
	// Retries counts retransmissions.
	Retries int

	pending bool
}

// Pending indicates the record waits for (re)transmission.
func (r *Record) Pending() bool {
	return r.pending
}

// Sender is the transmit side of a sliding window.
type Sender struct {
	ring       []Record
	head       int
	count      int
	base       Seq
	maxRetries int
	rto        time.Duration
}

// NewSender creates a Sender with the window size, retry limit and retry
// timeout. The first pushed payload gets sequence number initial.
func NewSender(window, maxRetries int, rto time.Duration, initial Seq) *Sender {
	if window < 1 {
		window = 1
	} else if window > MaxWindow {
		window = MaxWindow
	}
	return &Sender{
		ring:       make([]Record, window),
		base:       initial,
		maxRetries: maxRetries,
		rto:        rto,
	}
}

func (s *Sender) at(i int) *Record {
	return &s.ring[(s.head+i)%len(s.ring)]
}

// Window returns the window size.
func (s *Sender) Window() int {
	return len(s.ring)
}

// Len returns the number of records in the window.
func (s *Sender) Len() int {
	return s.count
}

// Base returns the oldest unacknowledged sequence number.
func (s *Sender) Base() Seq {
	return s.base
}

// NextSeq returns the sequence number for the next pushed payload.
func (s *Sender) NextSeq() Seq {
	return s.base.Add(s.count)
}

// Push stores payload under the next sequence number.
func (s *Sender) Push(payload []byte) (Seq, error) {
	if s.count >= len(s.ring) {
		return s.NextSeq(), ErrWindowFull
	}
	seq := s.NextSeq()
	*s.at(s.count) = Record{Seq: seq, Payload: payload, pending: true}
	s.count++
	return seq, nil
}

// Next returns the oldest record waiting for (re)transmission.
func (s *Sender) Next() (*Record, bool) {
	for i := 0; i < s.count; i++ {
		if r := s.at(i); r.pending {
			return r, true
		}
	}
	return nil, false
}

// HasPending checks if any record waits for (re)transmission.
func (s *Sender) HasPending() bool {
	_, ok := s.Next()
	return ok
}

// MarkSent records a transmission of seq at now and arms its retry timer.
func (s *Sender) MarkSent(seq Seq, now time.Time) bool {
	i := s.base.Distance(seq)
	if i >= s.count {
		return false
	}
	r := s.at(i)
	r.SentAt, r.pending = now, false
	return true
}

// Ack retires all records before n and returns how many were retired.
func (s *Sender) Ack(n Seq) (int, error) {
	d := s.base.Distance(n)
	if d > s.count {
		return 0, ErrAckOutOfWindow
	}
	for i := 0; i < d; i++ {
		*s.at(i) = Record{}
	}
	s.head = (s.head + d) % len(s.ring)
	s.count -= d
	s.base = n
	return d, nil
}

// Expire marks records whose retry timer elapsed for retransmission. It
// returns the number of records marked and the first record which already
// used up all retries.
func (s *Sender) Expire(now time.Time) (retransmits int, exhausted *Record) {
	for i := 0; i < s.count; i++ {
		r := s.at(i)
		if r.pending || r.SentAt.IsZero() || now.Sub(r.SentAt) < s.rto {
			continue
		}
		if r.Retries >= s.maxRetries {
			rec := *r
			return retransmits, &rec
		}
		r.Retries++
		r.pending = true
		retransmits++
	}
	return
}

// Hold restarts the retry timers of transmitted records and clears their
// retry counts. It is used while the peer cannot take more frames, which is
// not a loss.
func (s *Sender) Hold(now time.Time) {
	for i := 0; i < s.count; i++ {
		r := s.at(i)
		if r.pending || r.SentAt.IsZero() {
			continue
		}
		r.SentAt, r.Retries = now, 0
	}
}

// Drain discards all records and returns them. Numbering continues after the
// discarded records.
func (s *Sender) Drain() []Record {
	records := make([]Record, 0, s.count)
	for i := 0; i < s.count; i++ {
		records = append(records, *s.at(i))
	}
	s.Reset(s.NextSeq())
	return records
}

// Reset discards all records and restarts numbering from initial.
func (s *Sender) Reset(initial Seq) {
	for i := range s.ring {
		s.ring[i] = Record{}
	}
	s.head, s.count, s.base = 0, 0, initial
}
