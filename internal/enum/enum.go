package enum

// ── Roles (CHECK constrained on stores.role) ──

const (
	RoleStore     = "STORE"
	RoleAdmin     = "ADMIN"
	RoleWarehouse = "WAREHOUSE"
	RoleDashboard = "DASHBOARD"
)

// ── Order lifecycle (CHECK constrained on orders.status) ──

const (
	OrderStatusOpen       = "open"
	OrderStatusInProgress = "in_progress"
	OrderStatusClosed     = "closed"
)

// ── Live feed ──

const (
	EventOrderSubmitted  = "order.submitted"
	EventOrderUpdated    = "order.updated"
	EventOrderInProgress = "order.in_progress"
	EventOrderClosed     = "order.closed"
	EventBoardSnapshot   = "board.snapshot"
)

const (
	RoomDashboard = "dashboard"
	RoomWarehouse = "warehouse"
)
