package domain

// Tag groups cached queries for bulk invalidation.
type Tag string

const (
	TagUser Tag = "User"
	TagPlan Tag = "Plan"
)

// Query and mutation kinds exposed by the user API.
const (
	QueryLogin       = "login"
	QueryGetUserData = "getUserData"
	MutationRegister = "registerUser"
	MutationUpdate   = "updateUser"
	MutationDelete   = "deleteUser"
)
