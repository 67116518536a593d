package domain

// Stats — сводка по всем заявкам для /stats и дашборда консоли.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`

	// Доля одобренных от общего числа, 0..1
	ApprovalRate float64 `json:"approval_rate"`
}

func NewStats(counts map[Status]int) Stats {
	s := Stats{
		Pending:  counts[StatusPending],
		Approved: counts[StatusApproved],
		Rejected: counts[StatusRejected],
	}
	s.Total = s.Pending + s.Approved + s.Rejected
	if s.Total > 0 {
		s.ApprovalRate = float64(s.Approved) / float64(s.Total)
	}
	return s
}
