package auth

// Resources guarded by the authorization check.
const (
	ResourceStudents    = "students"
	ResourceSections    = "sections"
	ResourceFees        = "fees"
	ResourceDepartments = "departments"
	ResourceRBAC        = "rbac"
)

// BuiltinPermissions is the seeded permission catalog. CRUD features consult
// it through role assignments; the RBAC endpoints themselves are guarded by
// (rbac, manage).
var BuiltinPermissions = []Permission{
	{Resource: ResourceStudents, Action: "read", Description: "View student records"},
	{Resource: ResourceStudents, Action: ActionManage, Description: "Manage student records"},
	{Resource: ResourceSections, Action: "read", Description: "View class sections"},
	{Resource: ResourceSections, Action: ActionManage, Description: "Manage class sections"},
	{Resource: ResourceFees, Action: "read", Description: "View school fees"},
	{Resource: ResourceFees, Action: ActionManage, Description: "Manage school fees"},
	{Resource: ResourceDepartments, Action: "read", Description: "View departments"},
	{Resource: ResourceDepartments, Action: ActionManage, Description: "Manage departments"},
	{Resource: ResourceRBAC, Action: ActionManage, Description: "Manage roles and assignments"},
}
