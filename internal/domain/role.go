package domain

// Role is the capability set attached to a user.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"       // tenant operations staff
	RoleSuperAdmin Role = "SUPER_ADMIN" // platform staff
)

// Permission names one guarded capability.
type Permission string

const (
	PermSendMoney          Permission = "send_money"
	PermRequestWithdrawal  Permission = "request_withdrawal"
	PermManageTransactions Permission = "manage_transactions"
	PermManageWithdrawals  Permission = "manage_withdrawals"
	PermManageWallets      Permission = "manage_wallets"
)

var rolePermissions = map[Role][]Permission{
	RoleUser: {PermSendMoney, PermRequestWithdrawal},
	RoleAdmin: {
		PermSendMoney, PermRequestWithdrawal,
		PermManageTransactions, PermManageWithdrawals, PermManageWallets,
	},
	RoleSuperAdmin: {
		PermSendMoney, PermRequestWithdrawal,
		PermManageTransactions, PermManageWithdrawals, PermManageWallets,
	},
}

// Can reports whether the role grants p. Unknown roles grant nothing.
func (r Role) Can(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}
