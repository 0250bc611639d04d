package models

// Stats rows served to the three dashboards.
type AdminStats struct {
	WorkerCount        int   `json:"workerCount"`
	BuyerCount         int   `json:"buyerCount"`
	TotalCoin          int64 `json:"totalCoin"`
	TotalPaymentsCents int64 `json:"totalPaymentsCents"`
}

type BuyerStats struct {
	TaskCount         int   `json:"taskCount"`
	PendingTask       int64 `json:"pendingTask"`
	TotalPaymentCents int64 `json:"totalPaymentCents"`
}

type WorkerStats struct {
	TotalSubmission   int   `json:"totalSubmission"`
	PendingSubmission int   `json:"pendingSubmission"`
	TotalEarning      int64 `json:"totalEarning"`
}
