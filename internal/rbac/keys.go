package rbac

// Resource keys guarding the permission administration surface.
const (
	KeyPermissionsPage      = "permissions.page"
	KeyPermissionsUsers     = "permissions.users"
	KeyPermissionsApprovals = "permissions.approvals"
	KeyPermissionsAudits    = "permissions.audits"
)

// Resource keys for the order desk areas referenced by menu rules.
const (
	KeyOrdersList      = "orders.list"
	KeyOrdersDetail    = "orders.detail"
	KeyCustomersList   = "customers.list"
	KeyProductsCatalog = "products.catalog"
	KeyReportsSales    = "reports.sales"
	KeyUsersManage     = "users.manage"
)
