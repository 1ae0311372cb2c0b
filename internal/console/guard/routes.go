package guard

// Route is a navigation target and its declared requirement. The guard is
// the sole interpreter of the requirement; presentational code only asks
// for the decision.
type Route struct {
	Name        string
	Path        string
	Requirement Requirement
}

// Routes declares the console's protected navigation targets, one
// requirement each.
func Routes() []Route {
	return []Route{
		{Name: "dashboard", Path: "/", Requirement: None()},
		{Name: "tickets", Path: "/tickets", Requirement: Permission("view_tickets")},
		{Name: "invoices", Path: "/invoices", Requirement: Permission("view_invoices")},
		{Name: "articles", Path: "/articles", Requirement: Permission("view_articles")},
		{Name: "reports", Path: "/reports", Requirement: Permission("view_reports")},
		{Name: "recordings", Path: "/recordings", Requirement: Permission("view_recordings")},
		{Name: "broadcasts", Path: "/broadcasts", Requirement: AnyOf("send_broadcasts", "admin_users")},
		{Name: "logs", Path: "/logs", Requirement: AllOf("view_logs", "admin_users")},
		{Name: "admin", Path: "/admin", Requirement: ElevatedAdmin()},
	}
}

// Lookup finds a declared route by name.
func Lookup(name string) (Route, bool) {
	for _, r := range Routes() {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}
