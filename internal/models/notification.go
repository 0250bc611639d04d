package models

import (
	"time"

	"github.com/google/uuid"
)

// Dashboard routes a notification points its recipient to.
const (
	RouteBuyerHome     = "/dashboard/buyer-home"
	RouteWorkerHome    = "/dashboard/worker-home"
	RouteMySubmissions = "/dashboard/my-submissions"
	RouteWithdrawals   = "/dashboard/withdrawals"
)

type Notification struct {
	ID          uuid.UUID `json:"id"`
	ToEmail     string    `json:"to_email"`
	Message     string    `json:"message"`
	ActionRoute string    `json:"action_route"`
	CreatedAt   time.Time `json:"time"`
}
